package core

// Recipient is one session an event is about to be delivered to.
type Recipient struct {
	UserID    string
	SessionID string
	Client    ClientInfo
}

// Personalizer produces the payload for one recipient. Returning false skips
// the recipient.
type Personalizer interface {
	Personalize(r Recipient) (any, bool)
}

// PersonalizeFunc adapts a function to Personalizer.
type PersonalizeFunc func(r Recipient) (any, bool)

// Personalize implements Personalizer.
func (f PersonalizeFunc) Personalize(r Recipient) (any, bool) {
	return f(r)
}

type staticPayload struct {
	data any
}

func (s staticPayload) Personalize(Recipient) (any, bool) {
	return s.data, true
}

// Static sends the same payload to every recipient.
func Static(data any) Personalizer {
	return staticPayload{data: data}
}

// Except sends data to everyone but the given user.
func Except(userID string, data any) Personalizer {
	return PersonalizeFunc(func(r Recipient) (any, bool) {
		return data, r.UserID != userID
	})
}
