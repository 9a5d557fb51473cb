package response

import "time"

type Video struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Description string    `json:"description,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Config is the public client configuration. It holds nothing secret: the
// Supabase anon key is meant for browsers.
type Config struct {
	ChannelID       string `json:"youtubeChannelId"`
	SupabaseURL     string `json:"supabaseUrl"`
	SupabaseAnonKey string `json:"supabaseAnonKey"`
}
