package chat

// Session correlates every turn of one conversation instance.
type Session struct {
	ID string `json:"id"`
}
