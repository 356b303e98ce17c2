// Package splitsio uploads runs to and downloads runs from splits.io.
package splitsio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/clients"
	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/runcodec"
)

// ErrInvalidRun is returned when a downloaded run cannot be used.
var ErrInvalidRun = errors.New("downloaded splits are not valid")

type SplitsIOClient struct {
	*clients.BaseClient
}

func NewSplitsIOClient(baseURL string) *SplitsIOClient {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return &SplitsIOClient{
		BaseClient: clients.NewBaseClient(strings.TrimSuffix(baseURL, "/")),
	}
}

type presignedRequest struct {
	Method string            `json:"method"`
	URI    string            `json:"uri"`
	Fields map[string]string `json:"fields"`
}

type createRunResponse struct {
	ID         string `json:"id"`
	ClaimToken string `json:"claim_token"`
	URIs       struct {
		APIURI    string `json:"api_uri"`
		PublicURI string `json:"public_uri"`
		ClaimURI  string `json:"claim_uri"`
	} `json:"uris"`
	PresignedRequest presignedRequest `json:"presigned_request"`
}

// UploadLss creates a run on splits.io, uploads the file through the
// presigned request it hands out and returns the URI that claims the run.
func (c *SplitsIOClient) UploadLss(ctx context.Context, lss []byte) (string, error) {
	body, err := c.Post(ctx, RunsEndpoint, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	var created createRunResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if created.PresignedRequest.URI == "" || created.URIs.ClaimURI == "" {
		return "", fmt.Errorf("incomplete create run response: %s", string(body))
	}

	if err := c.upload(ctx, created.PresignedRequest, lss); err != nil {
		return "", err
	}

	log.Info().Str("id", created.ID).Msg("uploaded splits to splits.io")
	return created.URIs.ClaimURI, nil
}

func (c *SplitsIOClient) upload(ctx context.Context, req presignedRequest, lss []byte) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for name, value := range req.Fields {
		if err := form.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}
	// The file has to be the last field of the form.
	file, err := form.CreateFormFile("file", "splits.lss")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := file.Write(lss); err != nil {
		return fmt.Errorf("failed to write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("failed to close form: %w", err)
	}

	method := req.Method
	if method == "" {
		method = "POST"
	}
	_, err = c.Do(ctx, method, req.URI, &buf, map[string]string{
		"Content-Type": form.FormDataContentType(),
	})
	if err != nil {
		return fmt.Errorf("failed to upload splits: %w", err)
	}
	return nil
}

// DownloadByID fetches a run in its original format and parses it.
func (c *SplitsIOClient) DownloadByID(ctx context.Context, id string) (*models.Run, error) {
	id = NormalizeID(id)
	if id == "" {
		return nil, fmt.Errorf("missing run id")
	}

	body, err := c.Get(ctx, RunsEndpoint+"/"+url.PathEscape(id), map[string]string{
		"Accept": OriginalTimerContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download run %s: %w", id, err)
	}

	result := runcodec.Parse(body, "", false)
	if !result.ParsedSuccessfully() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRun, result.Err())
	}
	return result.Unwrap(), nil
}

// NormalizeID accepts a bare run id or a splits.io run URL.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	for _, prefix := range []string{"https://splits.io/", "http://splits.io/", "splits.io/"} {
		if strings.HasPrefix(id, prefix) {
			id = strings.TrimPrefix(id, prefix)
			break
		}
	}
	return strings.Trim(id, "/")
}
