package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/luthien/gateway/pkg/gwerrors"
	"github.com/luthien/gateway/pkg/observability"
	"github.com/luthien/gateway/pkg/policy"
	"github.com/luthien/gateway/pkg/policyregistry"
	"github.com/luthien/gateway/pkg/sse"
	"github.com/luthien/gateway/pkg/stream"
	"github.com/luthien/gateway/pkg/telemetry"
	"github.com/luthien/gateway/pkg/txn"
	"github.com/luthien/gateway/pkg/upstream"
	"github.com/luthien/gateway/pkg/wire"
	"github.com/luthien/gateway/pkg/wire/anthropic"
	"github.com/luthien/gateway/pkg/wire/openai"
)

// runStreaming is the streaming counterpart to runNonStreaming. The
// request hook still runs as an ordinary, un-streamed phase (no bytes have
// reached the client yet, so a block there is rendered as a one-shot SSE
// refusal exactly like a non-streaming refusal, just framed as events).
// Past that point every upstream event passes through OnStreamEvent and,
// for completed blocks, OnBlockComplete, with a block at either point
// truncating the stream with a synthetic refusal in place of the rest of
// the real content.
func (d *Driver) runStreaming(
	ctx context.Context,
	w http.ResponseWriter,
	format wire.Format,
	reqObj interface{},
	t *txn.Transaction,
	descriptor *policyregistry.Descriptor,
	pc *policy.Context,
) {
	originalBytes, _ := json.Marshal(reqObj)

	reqPhase, _ := telemetry.RecordSpan(ctx, d.tracer, telemetry.SpanOptions{Name: "pipeline.request_hook", EndWhenDone: true},
		func(ctx context.Context, span trace.Span) (hookOutcome, error) {
			block, herr := safeOnRequest(ctx, descriptor.Policy, pc, reqObj)
			if herr != nil {
				span.RecordError(herr)
			}
			return hookOutcome{Block: block}, nil
		})
	d.emit(t, observability.EventRequestHookRun, descriptor.ClassRef, t.Model, nil)

	if reqPhase.Block != nil {
		d.emit(t, observability.EventPolicyBlocked, descriptor.ClassRef, t.Model,
			map[string]interface{}{"reason": reqPhase.Block.Reason, "phase": "request"})
		d.writeStreamRefusal(w, format, t, reqPhase.Block.Reason)
		return
	}

	finalBytes, _ := json.Marshal(reqObj)
	changed := !bytes.Equal(originalBytes, finalBytes)

	session, err := d.openStreamSession(ctx, t, descriptor, format, originalBytes, finalBytes, changed)
	d.emit(t, observability.EventUpstreamCalled, descriptor.ClassRef, t.Model, map[string]interface{}{"error": errString(err)})
	if err != nil {
		d.emit(t, observability.EventTransactionError, descriptor.ClassRef, t.Model, map[string]interface{}{"error": err.Error()})
		d.writeError(w, format, err)
		return
	}
	defer session.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	sw := sse.NewWriter(w)

	pc.Keepalive = func() {
		_, _ = io.WriteString(w, ": keepalive\n\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}

	d.pumpStream(ctx, sw, format, session, t, descriptor, pc)
}

func (d *Driver) openStreamSession(
	ctx context.Context,
	t *txn.Transaction,
	descriptor *policyregistry.Descriptor,
	format wire.Format,
	originalBytes, finalBytes []byte,
	changed bool,
) (*upstream.Session, error) {
	session, err := d.upstream.Stream(ctx, format, finalBytes)
	if err != nil && changed && gwerrors.KindOf(err) == gwerrors.KindUpstreamBadRequest {
		d.emit(t, observability.EventPassthroughFallback, descriptor.ClassRef, t.Model,
			map[string]interface{}{"original_error": err.Error()})
		if fallback, ferr := d.upstream.StreamPassthrough(ctx, format, originalBytes); ferr == nil {
			return fallback, nil
		}
	}
	return session, err
}

// pumpStream reads canonical events off session, runs them past the active
// policy's stream hooks, and forwards whatever survives to the client in
// its own wire format. A block at any point ends the loop with a synthetic
// refusal instead of the remaining upstream content.
func (d *Driver) pumpStream(
	ctx context.Context,
	sw *sse.Writer,
	format wire.Format,
	session *upstream.Session,
	t *txn.Transaction,
	descriptor *policyregistry.Descriptor,
	pc *policy.Context,
) {
	assembler := session.Assembler()
	anthropicStartSent := false

	for {
		if ctx.Err() != nil {
			return
		}

		events, err := session.Next()

		if format == wire.FormatAnthropic && !anthropicStartSent && assembler.State().MessageID != "" {
			start := assembler.OutboundAnthropicStart()
			_ = sw.WriteJSON(start.Name, start.Payload)
			anthropicStartSent = true
		}

		if err != nil {
			if err == io.EOF {
				d.forwardEvents(sw, format, assembler, events)
				if format != wire.FormatAnthropic {
					_ = sw.WriteOpenAIDone()
				}
				return
			}
			d.emit(t, observability.EventTransactionError, descriptor.ClassRef, t.Model, map[string]interface{}{"error": err.Error()})
			pc.OutputFinished = false
			d.writeMidStreamBlock(sw, format, assembler, "the upstream stream ended unexpectedly", stream.FinishContentFilter)
			return
		}

		for _, ev := range events {
			block, herr := safeOnStreamEvent(ctx, descriptor.Policy, pc, ev)
			if herr != nil {
				d.emit(t, observability.EventTransactionError, descriptor.ClassRef, t.Model, map[string]interface{}{"error": herr.Error()})
			}
			if block != nil {
				d.emit(t, observability.EventPolicyBlocked, descriptor.ClassRef, t.Model,
					map[string]interface{}{"reason": block.Reason, "phase": "stream_event"})
				d.writeMidStreamBlock(sw, format, assembler, block.Reason, stream.FinishStop)
				return
			}

			if ev.Kind == stream.EventBlockStop {
				if completed, ok := assembler.State().Block(ev.Index); ok {
					d.emit(t, observability.EventBlockCompleted, descriptor.ClassRef, t.Model,
						map[string]interface{}{"index": ev.Index, "kind": string(completed.Kind)})
					cblock, cherr := safeOnBlockComplete(ctx, descriptor.Policy, pc, completed)
					if cherr != nil {
						d.emit(t, observability.EventTransactionError, descriptor.ClassRef, t.Model, map[string]interface{}{"error": cherr.Error()})
					}
					if cblock != nil {
						d.emit(t, observability.EventPolicyBlocked, descriptor.ClassRef, t.Model,
							map[string]interface{}{"reason": cblock.Reason, "phase": "block_complete"})
						d.writeMidStreamBlock(sw, format, assembler, cblock.Reason, stream.FinishStop)
						return
					}
				}
			}

			if ev.Kind == stream.EventMessageStop {
				pc.OutputFinished = true
			}

			d.forwardEvent(sw, format, assembler, ev)
		}
	}
}

func (d *Driver) forwardEvents(sw *sse.Writer, format wire.Format, assembler *stream.Assembler, events []stream.Event) {
	for _, ev := range events {
		d.forwardEvent(sw, format, assembler, ev)
	}
}

func (d *Driver) forwardEvent(sw *sse.Writer, format wire.Format, assembler *stream.Assembler, ev stream.Event) {
	if format == wire.FormatAnthropic {
		for _, out := range assembler.OutboundAnthropic(ev) {
			_ = sw.WriteJSON(out.Name, out.Payload)
		}
		return
	}
	for _, chunk := range assembler.OutboundOpenAI(ev) {
		_ = sw.WriteJSON("", chunk)
	}
}

// writeStreamRefusal renders a request-hook block as a complete, minimal
// SSE stream: no upstream call was ever made, so there is no assembler
// state to draw a message id or model from beyond what ingress already
// parsed onto the Transaction.
func (d *Driver) writeStreamRefusal(w http.ResponseWriter, format wire.Format, t *txn.Transaction, reason string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	sw := sse.NewWriter(w)

	switch format {
	case wire.FormatAnthropic:
		id := "msg_" + t.ID
		_ = sw.WriteJSON("message_start", anthropic.MessageStart{
			Type: "message_start",
			Message: anthropic.MessageStartStub{
				ID: id, Type: "message", Role: "assistant", Model: t.Model, Content: []anthropic.ContentBlock{},
			},
		})
		_ = sw.WriteJSON("content_block_start", anthropic.ContentBlockStart{Type: "content_block_start", Index: 0, ContentBlock: anthropic.ContentBlock{Type: "text"}})
		_ = sw.WriteJSON("content_block_delta", anthropic.ContentBlockDelta{Type: "content_block_delta", Index: 0, Delta: anthropic.BlockDelta{Type: "text_delta", Text: reason}})
		_ = sw.WriteJSON("content_block_stop", anthropic.ContentBlockStop{Type: "content_block_stop", Index: 0})
		stopReason := stream.CanonicalToAnthropicStopReason(stream.FinishStop)
		_ = sw.WriteJSON("message_delta", anthropic.MessageDelta{Type: "message_delta", Delta: anthropic.MessageDeltaBody{StopReason: &stopReason}})
		_ = sw.WriteJSON("message_stop", anthropic.MessageStop{Type: "message_stop"})
	default:
		id := "chatcmpl-" + t.ID
		text := reason
		_ = sw.WriteJSON("", &openai.StreamChunk{
			ID: id, Object: "chat.completion.chunk", Model: t.Model,
			Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.ChunkDelta{Role: "assistant", Content: &text}}},
		})
		finishReason := stream.CanonicalToOpenAIFinishReason(stream.FinishStop)
		_ = sw.WriteJSON("", &openai.StreamChunk{
			ID: id, Object: "chat.completion.chunk", Model: t.Model,
			Choices: []openai.ChunkChoice{{Index: 0, FinishReason: &finishReason}},
		})
		_ = sw.WriteOpenAIDone()
	}
}

// writeMidStreamBlock closes out an in-progress stream with a synthetic
// refusal block once real upstream content has already started reaching
// the client, so it must close every block the assembler still considers
// open before appending its own. finish is the canonical finish reason to
// report: stream.FinishStop for a policy-synthesized replacement (the
// client asked for a tool call or text and got a text refusal instead, so
// the call completed normally from the client's point of view) and
// stream.FinishContentFilter only for a genuine StreamMidError, where the
// upstream connection itself failed mid-stream.
func (d *Driver) writeMidStreamBlock(sw *sse.Writer, format wire.Format, assembler *stream.Assembler, reason, finish string) {
	state := assembler.State()

	if format == wire.FormatAnthropic {
		for _, b := range state.Blocks() {
			if !b.Complete {
				_ = sw.WriteJSON("content_block_stop", anthropic.ContentBlockStop{Type: "content_block_stop", Index: b.Index})
			}
		}
		idx := len(state.Blocks())
		_ = sw.WriteJSON("content_block_start", anthropic.ContentBlockStart{Type: "content_block_start", Index: idx, ContentBlock: anthropic.ContentBlock{Type: "text"}})
		_ = sw.WriteJSON("content_block_delta", anthropic.ContentBlockDelta{Type: "content_block_delta", Index: idx, Delta: anthropic.BlockDelta{Type: "text_delta", Text: reason}})
		_ = sw.WriteJSON("content_block_stop", anthropic.ContentBlockStop{Type: "content_block_stop", Index: idx})
		stopReason := stream.CanonicalToAnthropicStopReason(finish)
		_ = sw.WriteJSON("message_delta", anthropic.MessageDelta{Type: "message_delta", Delta: anthropic.MessageDeltaBody{StopReason: &stopReason}})
		_ = sw.WriteJSON("message_stop", anthropic.MessageStop{Type: "message_stop"})
		return
	}

	id, model := state.MessageID, state.Model
	text := reason
	_ = sw.WriteJSON("", &openai.StreamChunk{
		ID: id, Object: "chat.completion.chunk", Model: model,
		Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.ChunkDelta{Content: &text}}},
	})
	finishReason := stream.CanonicalToOpenAIFinishReason(finish)
	_ = sw.WriteJSON("", &openai.StreamChunk{
		ID: id, Object: "chat.completion.chunk", Model: model,
		Choices: []openai.ChunkChoice{{Index: 0, FinishReason: &finishReason}},
	})
	_ = sw.WriteOpenAIDone()
}
