package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/bookstack"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/config"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/confluence"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/convert"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/markdown"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/orchestrator"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/verify"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/wikijs"
)

// source is what a run needs from Confluence: the tree and a way to
// download attachments while exporting.
type source interface {
	Fetch(ctx context.Context) (*model.Tree, error)
	Download(ctx context.Context, att *model.Attachment) (io.ReadCloser, error)
}

// confluenceSource couples the fetcher with the client that downloads.
type confluenceSource struct {
	*confluence.Fetcher
	*confluence.Client
}

func newConfluenceSource(cfg *config.Config, logger *slog.Logger) (source, error) {
	client, err := confluence.NewClient(confluence.ClientConfig{
		BaseURL:  cfg.Confluence.BaseURL,
		AuthType: cfg.Confluence.AuthType,
		Username: cfg.Confluence.Username,
		APIToken: cfg.Confluence.APIToken,
		PageSize: cfg.Confluence.PageSize,
		Timeout:  cfg.Advanced.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	fetcher, err := confluence.NewFetcher(client, confluence.FetchOptions{
		SpaceKeys:     cfg.Confluence.SpaceKeys,
		Labels:        cfg.Confluence.Labels,
		ExcludeTitles: cfg.Confluence.ExcludeTitles,
	}, logger)
	if err != nil {
		return nil, err
	}
	return confluenceSource{Fetcher: fetcher, Client: client}, nil
}

// newCollaborators wires the phase components from configuration. fetch is
// nil when there is no Confluence source, in which case attachments are
// listed but not downloaded.
func newCollaborators(cfg *config.Config, fetch markdown.AttachmentFetcher, logger *slog.Logger) orchestrator.Collaborators {
	iv := cfg.Advanced.IntegrityVerification
	return orchestrator.Collaborators{
		Converter: convert.New(logger),
		Verifier: verify.New(verify.Options{
			Depth:            iv.Depth,
			ComputeChecksums: iv.ComputeChecksums,
		}, logger),
		Reader: markdown.NewReader(markdown.ReaderOptions{ExcludePatterns: cfg.Export.ExcludePatterns}, logger),

		NewExporter: func() (orchestrator.Exporter, error) {
			return markdown.NewExporter(markdown.ExportOptions{
				OutputDirectory:  cfg.Export.OutputDirectory,
				CreateIndexFiles: cfg.Export.CreateIndexFiles,
				SkipUnchanged:    cfg.Export.SkipUnchanged,
				DryRun:           cfg.Migration.DryRun,
				FetchAttachment:  fetch,
			}, logger), nil
		},

		NewWikiJS: func(tree *model.Tree) (orchestrator.WikiJSImporter, error) {
			client, err := wikijs.NewClient(wikijs.ClientConfig{
				BaseURL:    cfg.WikiJS.BaseURL,
				APIKey:     cfg.WikiJS.APIKey,
				Timeout:    cfg.Advanced.RequestTimeout,
				MaxRetries: cfg.Advanced.MaxRetries,
			}, logger)
			if err != nil {
				return nil, err
			}
			return wikijs.NewImporter(client, tree, wikijs.Options{
				ConflictResolution: cfg.WikiJS.ConflictResolution,
				IncludeSpaceInPath: cfg.WikiJS.IncludeSpaceInPath,
				PathPrefix:         cfg.WikiJS.PathPrefix,
				Locale:             cfg.WikiJS.Locale,
				Editor:             cfg.WikiJS.Editor,
				PreservePageIDs:    cfg.Migration.PreservePageIDs,
				UploadAssets:       true,
			}, logger), nil
		},

		NewBookStack: func(tree *model.Tree) (orchestrator.BookStackImporter, error) {
			client, err := bookstack.NewClient(bookstack.ClientConfig{
				BaseURL:     cfg.BookStack.BaseURL,
				TokenID:     cfg.BookStack.TokenID,
				TokenSecret: cfg.BookStack.TokenSecret,
				Timeout:     cfg.Advanced.RequestTimeout,
				MaxRetries:  cfg.Advanced.MaxRetries,
			}, logger)
			if err != nil {
				return nil, err
			}
			return bookstack.NewImporter(client, tree, bookstack.Options{
				ShelfName:       cfg.BookStack.ShelfName,
				UploadWorkers:   cfg.BookStack.UploadWorkers,
				PreservePageIDs: cfg.Migration.PreservePageIDs,
			}, logger), nil
		},
	}
}
