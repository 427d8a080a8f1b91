package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"account-service/internal/client"
	"account-service/internal/model"
	"account-service/internal/util"
)

const defaultProfileIndex = "profiles"

// ProfileIndex mirrors profiles into Elasticsearch so list queries can filter
// without scanning the primary store. Indexing is best-effort; the store of
// record stays authoritative and readers fall back to it when ES is down.
type ProfileIndex struct {
	es    *client.ESClient
	index string
}

func NewProfileIndex(esClient *client.ESClient, index string) *ProfileIndex {
	if index == "" {
		index = defaultProfileIndex
	}
	return &ProfileIndex{es: esClient, index: index}
}

type profileDocument struct {
	ProfileID    string `json:"profile_id"`
	CredentialID string `json:"credential_id"`
	Email        string `json:"email"`
	Surname      string `json:"surname"`
	UpdatedAt    string `json:"updated_at"`
}

type searchResult struct {
	Hits struct {
		Hits []struct {
			Source profileDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Index upserts one profile document. Failures are logged, not returned.
func (p *ProfileIndex) Index(ctx context.Context, profile *model.Profile) {
	if p == nil || p.es == nil || profile == nil {
		return
	}
	doc := profileDocument{
		ProfileID:    profile.ProfileID,
		CredentialID: profile.CredentialID,
		Email:        profile.Email,
		Surname:      profile.Surname,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	res, err := p.es.IndexDocument(ctx, p.index, profile.ProfileID, doc)
	if err != nil {
		util.Warn("failed to index profile",
			zap.String("profile_id", profile.ProfileID),
			zap.Error(err))
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		util.Warn("profile index rejected",
			zap.String("profile_id", profile.ProfileID),
			zap.String("status", res.Status()))
	}
}

// Remove deletes a profile document; a 404 is not an error.
func (p *ProfileIndex) Remove(ctx context.Context, profileID string) {
	if p == nil || p.es == nil {
		return
	}
	res, err := p.es.DeleteDocument(ctx, p.index, profileID)
	if err != nil {
		util.Warn("failed to remove profile from index",
			zap.String("profile_id", profileID),
			zap.Error(err))
		return
	}
	res.Body.Close()
}

// Search returns profile ids matching the given field filters. Exact terms
// on email and credential id, match on surname.
func (p *ProfileIndex) Search(ctx context.Context, filters map[string]string, limit int) ([]string, error) {
	if p == nil || p.es == nil {
		return nil, fmt.Errorf("search index unavailable")
	}
	if limit <= 0 {
		limit = 50
	}

	must := make([]map[string]interface{}, 0, len(filters))
	for field, value := range filters {
		switch field {
		case "email", "credential_id":
			must = append(must, map[string]interface{}{
				"term": map[string]interface{}{field + ".keyword": value},
			})
		default:
			must = append(must, map[string]interface{}{
				"match": map[string]interface{}{field: value},
			})
		}
	}

	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}
	if len(must) == 0 {
		query["query"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	res, err := p.es.Search(ctx, p.index, query)
	if err != nil {
		return nil, err
	}
	result := &searchResult{}
	if err := p.es.ParseResponse(res, result); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		ids = append(ids, hit.Source.ProfileID)
	}
	return ids, nil
}
