package http

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cinemaleshalles/rapla/internal/application"
	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// entityEnvelope is the wire form of a polymorphic entity: the kind selects
// the concrete type the data decodes into.
type entityEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type refDTO struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type updateResultDTO struct {
	Stored        []entityEnvelope `json:"stored"`
	Removed       []refDTO         `json:"removed"`
	LastValidated string           `json:"last_validated"`
}

func encodeEntities(entities []entity.Entity) ([]entityEnvelope, error) {
	out := make([]entityEnvelope, 0, len(entities))
	for _, e := range entities {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", e.Ref(), err)
		}
		out = append(out, entityEnvelope{Kind: string(e.Ref().Kind), Data: data})
	}
	return out, nil
}

func decodeEntities(envelopes []entityEnvelope) ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(envelopes))
	for _, envelope := range envelopes {
		decoded, err := entity.DecodeJSON(entity.Kind(envelope.Kind), envelope.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

func encodeRefs(refs []entity.ReferenceInfo) []refDTO {
	out := make([]refDTO, 0, len(refs))
	for _, ref := range refs {
		out = append(out, refDTO{Kind: string(ref.Kind), ID: ref.ID})
	}
	return out
}

func decodeRefs(dtos []refDTO) ([]entity.ReferenceInfo, error) {
	out := make([]entity.ReferenceInfo, 0, len(dtos))
	for _, dto := range dtos {
		kind := entity.Kind(dto.Kind)
		if !entity.ValidKind(kind) {
			return nil, fmt.Errorf("unknown entity kind %q", dto.Kind)
		}
		out = append(out, entity.ReferenceInfo{ID: dto.ID, Kind: kind})
	}
	return out, nil
}

func encodeUpdateResult(result application.UpdateResult) (updateResultDTO, error) {
	stored, err := encodeEntities(result.Stored)
	if err != nil {
		return updateResultDTO{}, err
	}
	return updateResultDTO{
		Stored:        stored,
		Removed:       encodeRefs(result.Removed),
		LastValidated: storage.FormatTimestamp(result.LastValidated),
	}, nil
}

func formatWireTimestamp(t time.Time) string {
	return storage.FormatTimestamp(t)
}

func parseWireTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	return storage.ParseTimestamp(value)
}
