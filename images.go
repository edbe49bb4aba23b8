/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

type ImageLabel string

const (
	LabelReal ImageLabel = "real"
	LabelAI   ImageLabel = "ai"
)

// Image is a cataloged picture with its ground-truth label.
// Immutable once scanned.
type Image struct {
	ID   string     `json:"id"`
	Src  string     `json:"src"`
	Type ImageLabel `json:"type,omitempty"`
	Alt  string     `json:"alt,omitempty"`
}

// sanitized returns a copy safe to hand to players mid-game: the label
// is the answer key, so it never leaves the server before round-end.
func (i Image) sanitized() Image {
	i.Type = ""
	return i
}

var ErrInsufficientImages = errors.New("not enough images of each label to fill a game")

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}

	return false
}

func scanPartition(root string, label ImageLabel) ([]Image, error) {
	entries, err := os.ReadDir(filepath.Join(root, string(label)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	prefix := "Real"
	if label == LabelAI {
		prefix = "AI"
	}

	images := []Image{}

	for _, entry := range entries {
		if entry.IsDir() || !isImageFile(entry.Name()) {
			continue
		}

		n := len(images)

		images = append(images, Image{
			ID:   fmt.Sprintf("%s-%d", label, n),
			Src:  fmt.Sprintf("/images/%s/%s", label, entry.Name()),
			Type: label,
			Alt:  fmt.Sprintf("%s image %d", prefix, n+1),
		})
	}

	return images, nil
}

// scanImages enumerates the two catalog partitions under root, labeling
// each image by the partition it was found in.
func scanImages(root string) ([]Image, error) {
	realImages, err := scanPartition(root, LabelReal)
	if err != nil {
		return nil, err
	}

	aiImages, err := scanPartition(root, LabelAI)
	if err != nil {
		return nil, err
	}

	return append(realImages, aiImages...), nil
}

func filterByLabel(images []Image, label ImageLabel) []Image {
	filtered := []Image{}

	for _, image := range images {
		if image.Type == label {
			filtered = append(filtered, image)
		}
	}

	return filtered
}

func shuffled(images []Image) []Image {
	out := make([]Image, len(images))
	copy(out, images)

	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})

	return out
}

// selectImages deals a session image list: totalRounds images, half real
// and half AI (the AI half rounds up), each half shuffled before the cut
// and the combined list shuffled again so the label order is unpredictable.
//
// excludeIDs removes already-seen images first; if either partition comes
// up short after exclusion, the exclusion set is discarded entirely and
// selection restarts from the full catalog. If even the full catalog
// cannot fill both halves, selection fails with ErrInsufficientImages.
func selectImages(available []Image, totalRounds int, excludeIDs []string) ([]Image, error) {
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	unseen := []Image{}
	for _, image := range available {
		if !excluded[image.ID] {
			unseen = append(unseen, image)
		}
	}

	realImages := filterByLabel(unseen, LabelReal)
	aiImages := filterByLabel(unseen, LabelAI)

	half := totalRounds / 2

	if len(realImages) < half || len(aiImages) < totalRounds-half {
		realImages = filterByLabel(available, LabelReal)
		aiImages = filterByLabel(available, LabelAI)
	}

	if len(realImages) < half || len(aiImages) < totalRounds-half {
		return nil, ErrInsufficientImages
	}

	selected := append(shuffled(realImages)[:half], shuffled(aiImages)[:totalRounds-half]...)

	return shuffled(selected), nil
}
