package store

import (
	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/google/uuid"
)

// PushNotification adds a user-visible notification and returns it.
func (s *Store) PushNotification(level models.NotificationLevel, title, detail string) models.Notification {
	s.mu.Lock()
	n := models.Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Detail:    detail,
		CreatedAt: s.now(),
	}
	s.notifications = append(s.notifications, n)
	s.emitLocked(Change{Kind: ChangeNotifications, ID: n.ID})
	s.mu.Unlock()
	s.flush()
	return n
}

// DismissNotification removes a notification. Unknown ids are ignored.
func (s *Store) DismissNotification(id string) {
	s.mu.Lock()
	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i:i], s.notifications[i+1:]...)
			s.emitLocked(Change{Kind: ChangeNotifications, ID: id})
			break
		}
	}
	s.mu.Unlock()
	s.flush()
}

// Notifications returns the pending notifications, oldest first.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}
