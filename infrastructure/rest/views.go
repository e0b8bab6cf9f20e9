package rest

import (
	"dm-lab/domain"
	"dm-lab/domain/event"
	"time"

	"github.com/samber/lo"
)

type UserView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}

type ConversationView struct {
	User        UserView          `json:"user"`
	LastMessage event.MessageView `json:"lastMessage"`
	UnreadCount int               `json:"unreadCount"`
}

type PageView[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type HistoryView struct {
	PageView[event.MessageView]
	HasMore    bool       `json:"hasMore"`
	NextBefore *time.Time `json:"nextBefore"`
}

type SendRequest struct {
	ReceiverID  string  `json:"receiver_id" form:"receiver_id" validate:"required"`
	Content     *string `json:"content" form:"content"`
	MessageType string  `json:"message_type" form:"message_type"`
	FileURL     *string `json:"file_url" form:"file_url"`
}

func toUserView(u domain.User) UserView {
	return UserView{ID: u.ID, Username: u.Username, FullName: u.FullName, AvatarURL: u.AvatarURL}
}

func toConversationsView(p domain.ConversationPage) PageView[ConversationView] {
	return PageView[ConversationView]{
		Items: lo.Map(p.Conversations, func(c domain.Conversation, _ int) ConversationView {
			return ConversationView{
				User:        toUserView(c.Counterpart),
				LastMessage: event.ToView(c.LastMessage),
				UnreadCount: c.UnreadCount,
			}
		}),
		Total: p.Total,
		Page:  p.Page,
		Limit: p.Limit,
	}
}

func toHistoryView(p domain.HistoryPage) HistoryView {
	return HistoryView{
		PageView: PageView[event.MessageView]{
			Items: event.ToViews(p.Messages),
			Total: p.Total,
			Page:  p.Page,
			Limit: p.Limit,
		},
		HasMore:    p.HasMore,
		NextBefore: p.NextBefore,
	}
}

func toSearchView(p domain.SearchPage) PageView[event.MessageView] {
	return PageView[event.MessageView]{
		Items: event.ToViews(p.Messages),
		Total: p.Total,
		Page:  p.Page,
		Limit: p.Limit,
	}
}
