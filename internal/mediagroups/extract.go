package mediagroups

import (
	"repost-bot/internal/database/models"

	"github.com/mymmrac/telego"
)

// ExtractContent scans a flushed group in arrival order and collects every
// photo and video into media items, picking the largest-resolution variant of
// each photo. The group caption is the first non-empty caption found while
// scanning, which is not necessarily the primary message's. A group with no
// extractable media returns an empty item list.
func ExtractContent(messages []telego.Message) (items []models.MediaItem, caption string) {
	for _, msg := range messages {
		if caption == "" && msg.Caption != "" {
			caption = msg.Caption
		}
		switch {
		case len(msg.Photo) > 0:
			items = append(items, models.MediaItem{
				Type:   "photo",
				FileID: LargestPhoto(msg.Photo).FileID,
			})
		case msg.Video != nil:
			items = append(items, models.MediaItem{
				Type:   "video",
				FileID: msg.Video.FileID,
			})
		}
	}
	return items, caption
}

// LargestPhoto returns the highest-resolution variant of a photo.
func LargestPhoto(sizes []telego.PhotoSize) telego.PhotoSize {
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}
