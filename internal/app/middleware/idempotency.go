package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"carrental/internal/app/commands"
	"carrental/internal/domain/shared/errkind"
)

// IdempotentCommand is a command the client may retry under an Idempotency-Key.
// ResultPrototype returns a pointer the stored result is decoded into; it
// must match what the handler returns.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	ResultPrototype() any
}

// IdempotencyRecord is the remembered outcome of one keyed command: either
// an encoded result or a domain error kind and message.
type IdempotencyRecord struct {
	Key        string
	Payload    []byte
	Error      string
	ErrorKind  string
	OccurredAt time.Time
}

func (r IdempotencyRecord) failed() bool { return r.Error != "" }

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONResultCodec) Decode(data []byte, out any) error { return json.Unmarshal(data, out) }

var errMissingPrototype = errors.New("middleware: idempotent command has no result prototype")

type idempotency struct {
	store IdempotencyStore
	codec ResultCodec
	next  commands.Bus
}

// Idempotency makes a retried booking request return what the first attempt
// returned, so a client retry never books or charges twice. Domain errors
// are remembered too; infrastructure failures are not, so they stay retryable.
func Idempotency(store IdempotencyStore, codec ResultCodec) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	return func(next commands.Bus) commands.Bus {
		m := &idempotency{store: store, codec: codec, next: next}
		return DispatchFunc(m.dispatch)
	}
}

func (m *idempotency) dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	keyed, ok := cmd.(IdempotentCommand)
	if !ok || strings.TrimSpace(keyed.IdempotencyKey()) == "" {
		return m.next.Dispatch(ctx, cmd)
	}
	key := scopedKey(keyed, strings.TrimSpace(keyed.IdempotencyKey()))
	prior, found, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		return m.replay(prior, keyed)
	}

	result, err := m.next.Dispatch(ctx, cmd)
	if err != nil && !errkind.Known(err) {
		return nil, err
	}
	if saveErr := m.remember(ctx, key, result, err); saveErr != nil {
		return nil, errors.Join(err, saveErr)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (m *idempotency) replay(rec IdempotencyRecord, cmd IdempotentCommand) (any, error) {
	if rec.failed() {
		return nil, errkind.Restore(rec.ErrorKind, rec.Error)
	}
	proto := cmd.ResultPrototype()
	if proto == nil {
		return nil, errMissingPrototype
	}
	if err := m.codec.Decode(rec.Payload, proto); err != nil {
		return nil, err
	}
	return proto, nil
}

func (m *idempotency) remember(ctx context.Context, key string, result any, cmdErr error) error {
	rec := IdempotencyRecord{Key: key, OccurredAt: time.Now().UTC()}
	switch {
	case cmdErr != nil:
		rec.Error = cmdErr.Error()
		rec.ErrorKind = errkind.Of(cmdErr)
	case result != nil:
		payload, err := m.codec.Encode(result)
		if err != nil {
			return err
		}
		rec.Payload = payload
	}
	return m.store.Save(ctx, rec)
}

// scopedKey namespaces the client key by command and actor so the same header
// value on different endpoints or users never collides.
func scopedKey(cmd IdempotentCommand, key string) string {
	actor := ""
	if scoped, ok := cmd.(ActorScoped); ok {
		actor = scoped.ActorID()
	}
	return cmd.Key() + ":" + actor + ":" + key
}
