//go:generate go run go.uber.org/mock/mockgen -source=search_index.go -destination=../../mocks/mock_search_index.go -package=mocks
package storage

import (
	"context"
	"dm-lab/domain"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/blugelabs/bluge"
)

const (
	fieldParticipant = "participant"
	fieldContent     = "content_lower"
)

type ISearchIndex interface {
	Index(msg domain.Message) error
	Remove(id domain.MessageID) error
	Search(ctx context.Context, userID, counterpartID, query string) ([]domain.MessageID, error)
}

// SearchIndex keeps a Bluge document per text message.
// Content is indexed lowercased as a single keyword so wildcard queries
// behave like a case-insensitive substring match.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

func (s *SearchIndex) Index(msg domain.Message) error {
	if msg.Content == nil {
		return nil
	}
	doc := bluge.NewDocument(strconv.FormatUint(uint64(msg.ID), 10)).
		AddField(bluge.NewKeywordField(fieldParticipant, msg.SenderID)).
		AddField(bluge.NewKeywordField(fieldParticipant, msg.ReceiverID)).
		AddField(bluge.NewKeywordField(fieldContent, foldContent(*msg.Content)))
	return s.writer.Update(doc.ID(), doc)
}

func (s *SearchIndex) Remove(id domain.MessageID) error {
	return s.writer.Delete(bluge.Identifier(strconv.FormatUint(uint64(id), 10)))
}

// Search returns every candidate id, newest first. Candidates are a superset:
// callers re-check the content of the stored message.
// Hits are not ranked by score, so the whole match set is collected.
func (s *SearchIndex) Search(ctx context.Context, userID, counterpartID, query string) ([]domain.MessageID, error) {
	pattern := strings.NewReplacer("*", "", "?", "").Replace(foldContent(query))

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(userID).SetField(fieldParticipant)).
		AddMust(bluge.NewWildcardQuery("*" + pattern + "*").SetField(fieldContent))
	if counterpartID != "" {
		q.AddMust(bluge.NewTermQuery(counterpartID).SetField(fieldParticipant))
	}

	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Failed to close search reader", "error", err)
		}
	}()

	dmi, err := reader.Search(ctx, bluge.NewAllMatches(q))
	if err != nil {
		return nil, err
	}

	var ids []domain.MessageID
	match, err := dmi.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			id, parseErr := strconv.ParseUint(string(value), 10, 64)
			if parseErr == nil {
				ids = append(ids, domain.MessageID(id))
			}
			return false
		})
		if err != nil {
			return nil, err
		}
		match, err = dmi.Next()
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids, nil
}

// foldContent lowercases and flattens line breaks, wildcard matching stops at them.
func foldContent(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(strings.ToLower(s))
}
