package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"video-publish-scheduler/internal/config"
	"video-publish-scheduler/internal/models"
)

var (
	importDir     string
	importChannel string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Register finished payloads from a directory as pending items",
	Long: "Scans a directory for video files with sidecar metadata JSON\n" +
		"(<name>.json next to <name>.mp4) and registers them as pending\n" +
		"items. Re-importing is a no-op for already-known items.",
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "directory to scan (default: payload dir)")
	importCmd.Flags().StringVar(&importChannel, "channel", "", "channel name")
	_ = importCmd.MarkFlagRequired("channel")
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
	".mkv":  true,
}

var thumbnailExtensions = []string{".jpg", ".jpeg", ".png"}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cc, err := loadChannel(importChannel)
	if err != nil {
		return err
	}

	dir := importDir
	if dir == "" {
		dir = cfg.PayloadDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	imported, skipped := 0, 0
	for _, entry := range entries {
		if entry.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		item, err := itemFromFiles(dir, entry.Name(), cc)
		if err != nil {
			logger.Warn().Str("file", entry.Name()).Err(err).Msg("skipping unimportable file")
			continue
		}
		created, err := st.ImportItem(ctx, item)
		if err != nil {
			return fmt.Errorf("import %s: %w", item.ID, err)
		}
		if created {
			imported++
			logger.Info().Str("item", item.ID).Str("payload", item.PayloadRef).Msg("imported")
		} else {
			skipped++
		}
	}

	fmt.Printf("import: %d imported, %d already known\n", imported, skipped)
	return nil
}

// itemFromFiles builds a pending item from a video file, its sidecar
// metadata JSON, and an optional thumbnail sharing the same stem. The file
// stem doubles as the stable local identifier, so re-imports are idempotent.
func itemFromFiles(dir, name string, cc *config.ChannelConfig) (models.PendingItem, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	meta := models.VideoMetadata{
		Title:           stem,
		CategoryID:      cc.CategoryID,
		MadeForKids:     cc.MadeForKids,
		DefaultLanguage: cc.Language,
		Tags:            cc.DefaultTags,
	}
	sidecar := filepath.Join(dir, stem+".json")
	if raw, err := os.ReadFile(sidecar); err == nil {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return models.PendingItem{}, fmt.Errorf("parse sidecar %s: %w", sidecar, err)
		}
		if meta.CategoryID == "" {
			meta.CategoryID = cc.CategoryID
		}
		if len(meta.Tags) == 0 {
			meta.Tags = cc.DefaultTags
		}
		if meta.DefaultLanguage == "" {
			meta.DefaultLanguage = cc.Language
		}
	}
	if meta.Title == "" {
		return models.PendingItem{}, fmt.Errorf("no title for %s", name)
	}

	item := models.PendingItem{
		ID:         stem,
		Channel:    cc.Name,
		PayloadRef: name,
		Metadata:   meta,
	}
	for _, ext := range thumbnailExtensions {
		if _, err := os.Stat(filepath.Join(dir, stem+ext)); err == nil {
			item.ThumbnailRef = stem + ext
			break
		}
	}
	return item, nil
}
