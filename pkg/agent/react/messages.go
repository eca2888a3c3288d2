package react

// GenericMessage is a provider-neutral message, used by tests and by clients
// that keep their own history format.
type GenericMessage struct {
	Role    string
	Content string
}

func (m GenericMessage) ToParam() any {
	return m
}
