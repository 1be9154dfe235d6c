package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"lyrix/internal/types"
)

// DriveClient exports finished lyrics to a Google Drive folder. The
// integration is optional; the service runs local-only without it.
type DriveClient struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveClient builds a Drive client from stored OAuth credentials. The
// token file must already exist; there is no interactive flow in a server.
func NewDriveClient(ctx context.Context, credentialsFile, tokenFile, folderName string) (*DriveClient, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(creds, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	tokenData, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(tokenData, tok); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	dc := &DriveClient{service: srv, folderName: folderName}
	if err := dc.ensureRootFolder(); err != nil {
		return nil, err
	}
	return dc, nil
}

// Upload pushes the lyrics text and a metadata JSON into a dated folder
// tree and returns a shareable link to the text file.
func (dc *DriveClient) Upload(jobID, filename string, result *types.Result, meta types.Meta) (string, error) {
	now := time.Now()
	folderID, err := dc.ensureDateFolder(now)
	if err != nil {
		return "", err
	}

	base := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), sanitizeFilename(filename))

	txtFile := &drive.File{Name: base + ".txt", Parents: []string{folderID}}
	created, err := dc.service.Files.Create(txtFile).Media(bytes.NewReader([]byte(result.Lyrics))).Do()
	if err != nil {
		return "", fmt.Errorf("upload lyrics: %w", err)
	}

	metadata := map[string]any{
		"job_id":           jobID,
		"filename":         filename,
		"duration_seconds": meta.DurationSeconds,
		"language":         meta.Language,
		"separation_used":  meta.SeparationUsed,
		"created_at":       now.UTC(),
	}
	metaJSON, _ := json.MarshalIndent(metadata, "", "  ")
	metaFile := &drive.File{Name: base + "_meta.json", Parents: []string{folderID}}
	if _, err := dc.service.Files.Create(metaFile).Media(bytes.NewReader(metaJSON)).Do(); err != nil {
		return "", fmt.Errorf("upload metadata: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

func (dc *DriveClient) ensureRootFolder() error {
	id, err := dc.findOrCreateFolder(dc.folderName, "")
	if err != nil {
		return fmt.Errorf("ensure root folder: %w", err)
	}
	dc.folderID = id
	return nil
}

// ensureDateFolder creates nested year/month/day folders under the root.
func (dc *DriveClient) ensureDateFolder(t time.Time) (string, error) {
	yearID, err := dc.findOrCreateFolder(fmt.Sprintf("%d", t.Year()), dc.folderID)
	if err != nil {
		return "", err
	}
	monthID, err := dc.findOrCreateFolder(fmt.Sprintf("%02d", t.Month()), yearID)
	if err != nil {
		return "", err
	}
	return dc.findOrCreateFolder(fmt.Sprintf("%02d", t.Day()), monthID)
}

func (dc *DriveClient) findOrCreateFolder(name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false", name)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Do()
	if err != nil {
		return "", err
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}
	file, err := dc.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}
