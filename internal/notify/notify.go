package notify

// TextNotifier is the minimal outbound notification surface. Components
// depend on this rather than a concrete transport.
type TextNotifier interface {
	SendText(text string) error
}
