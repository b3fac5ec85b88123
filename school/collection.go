package school

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/campuskv/campuskv/kvsync"
)

var validate = validator.New()

// Item is anything that can live in a collection
type Item interface {
	ItemID() string
}

// ErrLocalWrite is returned when the synchronous local write fails, most
// often because the cache quota is exceeded. The prior collection value is
// left intact.
var ErrLocalWrite = fmt.Errorf("local write failed")

// Collection is the generic CRUD engine over one collection key. Every
// entity type shares this one implementation; the differences between
// entities live entirely in their schemas and validation tags.
type Collection[T Item] struct {
	key    string
	facade *kvsync.Facade
}

// NewCollection binds a collection engine to a key
func NewCollection[T Item](facade *kvsync.Facade, key string) *Collection[T] {
	return &Collection[T]{key: key, facade: facade}
}

// Key returns the collection key
func (c *Collection[T]) Key() string { return c.key }

// List returns all items in the collection
func (c *Collection[T]) List() []T {
	return kvsync.Get(c.facade, c.key, []T{})
}

// Find returns the item with the given id
func (c *Collection[T]) Find(id string) (T, bool) {
	for _, item := range c.List() {
		if item.ItemID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Add validates and appends an item. Requires the staff role.
func (c *Collection[T]) Add(sess Session, item T) error {
	if err := requireRole(sess, RoleStaff); err != nil {
		return err
	}
	if err := validate.Struct(item); err != nil {
		return fmt.Errorf("invalid %s item: %w", c.key, err)
	}

	items := c.List()
	for _, existing := range items {
		if existing.ItemID() == item.ItemID() {
			return fmt.Errorf("%s item %q already exists", c.key, item.ItemID())
		}
	}

	return c.write(append(items, item))
}

// Update validates and replaces the item with the same id. Requires the
// staff role.
func (c *Collection[T]) Update(sess Session, item T) error {
	if err := requireRole(sess, RoleStaff); err != nil {
		return err
	}
	if err := validate.Struct(item); err != nil {
		return fmt.Errorf("invalid %s item: %w", c.key, err)
	}

	items := c.List()
	for i, existing := range items {
		if existing.ItemID() == item.ItemID() {
			items[i] = item
			return c.write(items)
		}
	}
	return fmt.Errorf("%s item %q not found", c.key, item.ItemID())
}

// Remove deletes the item with the given id by rewriting the collection
// value; the key itself is never deleted. Requires the staff role.
func (c *Collection[T]) Remove(sess Session, id string) error {
	if err := requireRole(sess, RoleStaff); err != nil {
		return err
	}

	items := c.List()
	for i, existing := range items {
		if existing.ItemID() == id {
			items = append(items[:i], items[i+1:]...)
			return c.write(items)
		}
	}
	return fmt.Errorf("%s item %q not found", c.key, id)
}

// Watch invokes fn with the full collection whenever another context
// changes it. Returns a cancel func.
func (c *Collection[T]) Watch(fn func(items []T)) (cancel func()) {
	return c.facade.Watch(c.key, func(value json.RawMessage) {
		var items []T
		if err := json.Unmarshal(value, &items); err != nil {
			return
		}
		fn(items)
	})
}

func (c *Collection[T]) write(items []T) error {
	if !kvsync.Set(c.facade, c.key, items) {
		return ErrLocalWrite
	}
	return nil
}

// Singleton is the one-object variant of Collection, used for keys that
// hold a single document rather than a list.
type Singleton[T any] struct {
	key    string
	facade *kvsync.Facade
}

// NewSingleton binds a singleton engine to a key
func NewSingleton[T any](facade *kvsync.Facade, key string) *Singleton[T] {
	return &Singleton[T]{key: key, facade: facade}
}

// Get returns the current document, or fallback when unset
func (s *Singleton[T]) Get(fallback T) T {
	return kvsync.Get(s.facade, s.key, fallback)
}

// Set validates and replaces the document. Requires the admin role.
func (s *Singleton[T]) Set(sess Session, value T) error {
	if err := requireRole(sess, RoleAdmin); err != nil {
		return err
	}
	if err := validate.Struct(value); err != nil {
		return fmt.Errorf("invalid %s document: %w", s.key, err)
	}
	if !kvsync.Set(s.facade, s.key, value) {
		return ErrLocalWrite
	}
	return nil
}

// Watch invokes fn with the document whenever another context changes it
func (s *Singleton[T]) Watch(fn func(value T)) (cancel func()) {
	return s.facade.Watch(s.key, func(raw json.RawMessage) {
		var value T
		if err := json.Unmarshal(raw, &value); err != nil {
			return
		}
		fn(value)
	})
}

// Teachers returns the faculty collection
func Teachers(f *kvsync.Facade) *Collection[Teacher] {
	return NewCollection[Teacher](f, KeyTeachers)
}

// Students returns the student collection
func Students(f *kvsync.Facade) *Collection[Student] {
	return NewCollection[Student](f, KeyStudents)
}

// Announcements returns the announcement collection
func Announcements(f *kvsync.Facade) *Collection[Announcement] {
	return NewCollection[Announcement](f, KeyAnnouncements)
}

// Gallery returns the gallery collection
func Gallery(f *kvsync.Facade) *Collection[GalleryImage] {
	return NewCollection[GalleryImage](f, KeyGallery)
}

// Fees returns the fee record collection
func Fees(f *kvsync.Facade) *Collection[FeeRecord] {
	return NewCollection[FeeRecord](f, KeyFees)
}

// ExamRoutines returns the exam routine collection
func ExamRoutines(f *kvsync.Facade) *Collection[ExamRoutine] {
	return NewCollection[ExamRoutine](f, KeyExamRoutines)
}

// Books returns the book recommendation collection
func Books(f *kvsync.Facade) *Collection[BookRecommendation] {
	return NewCollection[BookRecommendation](f, KeyBooks)
}

// AudioMessages returns the audio message collection
func AudioMessages(f *kvsync.Facade) *Collection[AudioMessage] {
	return NewCollection[AudioMessage](f, KeyAudioMessages)
}

// BrandingDoc returns the branding singleton
func BrandingDoc(f *kvsync.Facade) *Singleton[Branding] {
	return NewSingleton[Branding](f, KeyBranding)
}
