// Package drive imports text documents from a user's Google Drive.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/pkg/scraper"
)

const (
	MimeTypeGoogleDoc = "application/vnd.google-apps.document"
	ExportMimeText    = "text/plain"

	// MaxFileSize caps downloaded and exported content (5MB).
	MaxFileSize = 5 * 1024 * 1024

	DefaultPageSize = 50
)

// ingestible lists the MIME types pulled from Drive.
var ingestible = []string{
	"text/plain",
	"text/markdown",
	"text/x-markdown",
	"text/html",
	MimeTypeGoogleDoc,
}

type Config struct {
	CredentialsFile string
	TokenFile       string
	PageSize        int
	RateLimit       float64 // requests per second
}

// Source lists and downloads Drive files owned by the authenticated user.
type Source struct {
	svc     *drive.Service
	config  Config
	limiter *rate.Limiter
}

// NewSource authenticates with the OAuth client in CredentialsFile and the
// stored token in TokenFile. Extra options are passed to the Drive client;
// when CredentialsFile is empty they must supply authentication themselves.
func NewSource(ctx context.Context, config Config, opts ...option.ClientOption) (*Source, error) {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 5
	}

	if config.CredentialsFile != "" {
		ts, err := tokenSource(ctx, config.CredentialsFile, config.TokenFile)
		if err != nil {
			return nil, err
		}
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	} else if len(opts) == 0 {
		return nil, fmt.Errorf("%w: google drive credentials file is not configured", models.ErrInvalidInput)
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Source{
		svc:     svc,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

func tokenSource(ctx context.Context, credentialsFile, tokenFile string) (oauth2.TokenSource, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	conf, err := google.ConfigFromJSON(creds, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}

	if tokenFile == "" {
		return nil, fmt.Errorf("%w: google drive token file is not configured", models.ErrInvalidInput)
	}
	raw, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token file (authorize once and store the token at %s): %w", tokenFile, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}

	return conf.TokenSource(ctx, &tok), nil
}

// Query builds the Drive search expression for ingestible files, optionally
// restricted to one folder.
func Query(folderID string) string {
	q := "'me' in owners and trashed = false"
	if folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", strings.ReplaceAll(folderID, "'", `\'`))
	}
	mimes := make([]string, len(ingestible))
	for i, m := range ingestible {
		mimes[i] = fmt.Sprintf("mimeType = '%s'", m)
	}
	return q + " and (" + strings.Join(mimes, " or ") + ")"
}

// List returns every ingestible file, following pagination.
func (s *Source) List(ctx context.Context, folderID string) ([]*drive.File, error) {
	var (
		files     []*drive.File
		pageToken string
	)
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := s.svc.Files.List().
			Q(Query(folderID)).
			PageSize(int64(s.config.PageSize)).
			Fields("nextPageToken, files(id, name, mimeType, size)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list drive files: %w", err)
		}
		files = append(files, resp.Files...)

		if resp.NextPageToken == "" {
			return files, nil
		}
		pageToken = resp.NextPageToken
	}
}

// Fetch downloads every ingestible file as a source document. Files that fail
// to download or have no text are logged and skipped.
func (s *Source) Fetch(ctx context.Context, folderID string) ([]models.SourceDocument, error) {
	files, err := s.List(ctx, folderID)
	if err != nil {
		return nil, err
	}
	logger.Info("found %d drive files", len(files))

	var docs []models.SourceDocument
	for _, f := range files {
		if err := s.limiter.Wait(ctx); err != nil {
			return docs, err
		}
		content, err := s.fileContent(ctx, f)
		if err != nil {
			logger.Warn("skipping drive file %s (%s): %v", f.Name, f.Id, err)
			continue
		}
		if strings.TrimSpace(content) == "" {
			logger.Debug("skipping empty drive file %s (%s)", f.Name, f.Id)
			continue
		}
		docs = append(docs, models.SourceDocument{
			Name:    f.Name,
			Source:  "drive:" + f.Id,
			Content: content,
		})
	}
	return docs, nil
}

func (s *Source) fileContent(ctx context.Context, f *drive.File) (string, error) {
	if f.MimeType == MimeTypeGoogleDoc {
		resp, err := s.svc.Files.Export(f.Id, ExportMimeText).Context(ctx).Download()
		if err != nil {
			return "", fmt.Errorf("export file: %w", err)
		}
		defer resp.Body.Close()
		return readLimited(resp.Body)
	}

	if f.Size > MaxFileSize {
		return "", fmt.Errorf("file is %d bytes, limit is %d", f.Size, MaxFileSize)
	}

	resp, err := s.svc.Files.Get(f.Id).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	text, err := readLimited(resp.Body)
	if err != nil || f.MimeType != "text/html" {
		return text, err
	}
	_, text, err = scraper.ExtractText(strings.NewReader(text))
	return text, err
}

func readLimited(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize))
	if err != nil {
		return "", fmt.Errorf("read file content: %w", err)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}
