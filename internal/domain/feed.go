package domain

import "time"

// Feed is the decoded channel feed of a source.
type Feed struct {
	AuthorName string
	AuthorURL  string
	Items      []FeedItem
}

// FeedItem is a candidate entry, in feed order.
type FeedItem struct {
	ItemID    string
	Title     string
	Position  int
	Published time.Time
}

// Candidate returns the item at position idx, if the feed has one.
func (f *Feed) Candidate(idx int) (FeedItem, bool) {
	if f == nil || idx < 0 || idx >= len(f.Items) {
		return FeedItem{}, false
	}
	return f.Items[idx], true
}

// MediaInfo is the probe result for one item.
type MediaInfo struct {
	Duration    int // seconds, 0 when unknown
	Title       string
	IsLive      bool
	IsShortForm bool
}

// Artifact is a downloaded audio file plus an optional thumbnail.
type Artifact struct {
	AudioPath     string
	ThumbnailPath string
}

// Delivery is everything the publisher needs to post one item.
type Delivery struct {
	AudioPath     string
	ThumbnailPath string
	Caption       string
	Duration      int
	Performer     string
	Title         string
}
