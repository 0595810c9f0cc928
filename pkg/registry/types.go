// Package registry talks to the content registry that stores share and reply
// records, and adapts its failures into the "nil means failed" contract used
// by the curation core.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nomland/nunti/pkg/attachments"
	"github.com/nomland/nunti/pkg/extract"
)

var ErrNotFound = errors.New("registry: not found")

// RecordKey identifies a created record: the owning character and the note.
type RecordKey struct {
	CharacterID string `json:"characterId"`
	NoteID      string `json:"noteId"`
}

func (k RecordKey) String() string {
	return k.CharacterID + "-" + k.NoteID
}

func ParseRecordKey(s string) (RecordKey, error) {
	owner, note, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || owner == "" || note == "" || strings.Contains(note, "-") {
		return RecordKey{}, fmt.Errorf("invalid record key %q", s)
	}
	return RecordKey{CharacterID: owner, NoteID: note}, nil
}

// Account references an identity in the registry. CharacterID is set when
// the identity already exists; otherwise the profile fields let the
// registry create it on first use.
type Account struct {
	CharacterID string `json:"characterId,omitempty"`
	Handle      string `json:"handle,omitempty"`
	Platform    string `json:"platform,omitempty"`
	Nickname    string `json:"nickname,omitempty"`
	Description string `json:"description,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// IsZero reports an empty reference.
func (a Account) IsZero() bool {
	return a.CharacterID == "" && a.Handle == ""
}

func (a Account) String() string {
	if a.CharacterID != "" {
		return a.CharacterID
	}
	return a.Handle
}

type Metadata struct {
	Name    string         `json:"name,omitempty"`
	Bio     string         `json:"bio,omitempty"`
	Avatars []string       `json:"avatars,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

type Character struct {
	CharacterID string   `json:"characterId"`
	Handle      string   `json:"handle"`
	Metadata    Metadata `json:"metadata"`
}

type ShareInput struct {
	Author      Account                  `json:"author"`
	Context     Account                  `json:"context"`
	Details     extract.Details          `json:"details"`
	EntityURL   string                   `json:"entityUrl"`
	ReplyTo     *RecordKey               `json:"replyTo,omitempty"`
	Parser      string                   `json:"parser,omitempty"`
	Attachments []attachments.Attachment `json:"attachments,omitempty"`
}

type ReplyInput struct {
	Author      Account                  `json:"author"`
	Context     Account                  `json:"context"`
	Details     extract.Details          `json:"details"`
	ReplyTo     RecordKey                `json:"replyTo"`
	Attachments []attachments.Attachment `json:"attachments,omitempty"`
}

// Registry is the remote content registry.
type Registry interface {
	// CharacterByHandle returns nil, nil when no character owns handle.
	CharacterByHandle(ctx context.Context, handle string) (*Character, error)
	SetCharacterMetadata(ctx context.Context, characterID string, md Metadata) error
	CreateShare(ctx context.Context, in ShareInput) (RecordKey, error)
	CreateReply(ctx context.Context, in ReplyInput) (RecordKey, error)
	DeleteRecord(ctx context.Context, key RecordKey) error
}
