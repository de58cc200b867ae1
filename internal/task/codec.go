package task

import (
	"encoding/json"
	"fmt"

	"github.com/olmax99/dockerflaskapi/internal/domain"
)

// Encode сериализует Unit в payload для таблицы tasks / сообщения.
func Encode(u Unit) (map[string]any, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", u.Kind(), err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", u.Kind(), err)
	}
	return payload, nil
}

// Decode восстанавливает типизированный Unit по kind и payload.
// Неизвестный kind — ErrUnknownKind.
func Decode(kind domain.TaskKind, payload map[string]any) (Unit, error) {
	switch kind {
	case domain.TaskKindIngestReport:
		return decodeAs[IngestReport](payload)
	case domain.TaskKindVerifySource:
		return decodeAs[VerifySource](payload)
	case domain.TaskKindVerifyTarget:
		return decodeAs[VerifyTarget](payload)
	case domain.TaskKindUpdatePartition:
		return decodeAs[UpdatePartition](payload)
	case domain.TaskKindCopyToTarget:
		return decodeAs[CopyToTarget](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// DecodeTask восстанавливает Unit из записи task.
func DecodeTask(t *domain.Task) (Unit, error) {
	return Decode(t.Kind, t.Payload)
}

func decodeAs[T Unit](payload map[string]any) (Unit, error) {
	var u T

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", u.Kind(), err)
	}
	return u, nil
}
