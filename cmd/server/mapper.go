package main

import (
	"dm-lab/infrastructure/storage"
	"strconv"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// MessageMapper renders message records in the debug inspector.
// Index keys carry no value and keep the default rendering.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	if !strings.HasPrefix(key, "msg:") {
		return row
	}

	msg, err := storage.DecodeMessage(val)
	if err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}

	row.Type = strings.ToUpper(string(msg.Type))
	row.Namespace = msg.SenderID + ">" + msg.ReceiverID
	row.EntityID = strconv.FormatUint(uint64(msg.ID), 10)
	row.Timestamp = msg.CreatedAt.Format("15:04:05")
	row.Scores = "unread"
	if msg.IsRead {
		row.Scores = "read"
	}
	switch {
	case msg.Content != nil:
		row.Detail = *msg.Content
	case msg.FileURL != nil:
		row.Detail = *msg.FileURL
	}
	return row
}
