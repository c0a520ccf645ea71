package tracking

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spfs-io/spfs/encoding"
)

// Tag links a human name to a storage object at a point in time. Tags form
// a linked list per name: Parent is the digest of the previous record in
// the stream, or encoding.NullDigest for the first.
//
// Tag is not a graph.Object: it is never stored in the object database,
// only appended to a per-name tag stream file (see storage/fs).
type Tag struct {
	Org    string
	Name   string
	Target encoding.Digest
	Parent encoding.Digest
	User   string
	Time   time.Time

	// Message is in-memory metadata only. It is never written by Encode
	// or read by Decode, and so never affects Digest() — see the "Tag
	// encoding message field" decision.
	Message string
}

// NewTag builds a Tag with User set to "user@host" and Time set to now
// (UTC, truncated to the second).
func NewTag(org, name string, target encoding.Digest) (Tag, error) {
	spec, err := BuildTagSpec(org, name, 0)
	if err != nil {
		return Tag{}, err
	}
	return Tag{
		Org:    spec.Org,
		Name:   spec.Name,
		Target: target,
		Parent: encoding.NullDigest,
		User:   defaultTagUser(),
		Time:   time.Now().UTC().Truncate(time.Second),
	}, nil
}

// Path returns the tag with no version suffix: "org/name" or "name".
func (t Tag) Path() string {
	spec := TagSpec{Org: t.Org, Name: t.Name}
	return spec.Path()
}

// Digest returns the content digest of the tag's encoded form.
func (t Tag) Digest() (encoding.Digest, error) {
	return encoding.DigestOf(t)
}

// Encode writes the tag in spec.md §6 order: org, name, target, user,
// ISO-8601 time, parent. There is deliberately no message field.
func (t Tag) Encode(w *encoding.Writer) error {
	if err := w.WriteString(t.Org); err != nil {
		return err
	}
	if err := w.WriteString(t.Name); err != nil {
		return err
	}
	if err := w.WriteDigest(t.Target); err != nil {
		return err
	}
	if err := w.WriteString(t.User); err != nil {
		return err
	}
	if err := w.WriteString(t.Time.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.WriteDigest(t.Parent)
}

// DecodeTag reads a Tag previously written by Encode.
func DecodeTag(r *encoding.Reader) (Tag, error) {
	var t Tag
	var err error
	if t.Org, err = r.ReadString(); err != nil {
		return Tag{}, err
	}
	if t.Name, err = r.ReadString(); err != nil {
		return Tag{}, err
	}
	if t.Target, err = r.ReadDigest(); err != nil {
		return Tag{}, err
	}
	if t.User, err = r.ReadString(); err != nil {
		return Tag{}, err
	}
	timeStr, err := r.ReadString()
	if err != nil {
		return Tag{}, err
	}
	if t.Time, err = time.Parse(time.RFC3339, timeStr); err != nil {
		return Tag{}, err
	}
	if t.Parent, err = r.ReadDigest(); err != nil {
		return Tag{}, err
	}
	return t, nil
}

func defaultTagUser() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	u, err := user.Current()
	name := "unknown"
	if err == nil {
		name = u.Username
	}
	return fmt.Sprintf("%s@%s", name, host)
}
