package http

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// ErrUnknownEvent marks an event name outside the protocol.
var ErrUnknownEvent = errors.New("unknown event")

func inboundToCommand(inbound proto.Inbound) (*core.Command, error) {
	switch inbound.Kind() {
	case proto.KindRegister:
		return &core.Command{
			Kind:     core.CommandRegister,
			Username: inbound.Username,
		}, nil
	case proto.KindPrivateMessage:
		return &core.Command{
			Kind: core.CommandPrivateMessage,
			Message: store.Message{
				Event:   store.EventPrivateMessage,
				From:    inbound.From,
				To:      inbound.To,
				Time:    inbound.Time,
				Content: inbound.Content,
			},
		}, nil
	case proto.KindMediaMessage:
		return &core.Command{
			Kind: core.CommandMediaMessage,
			Message: store.Message{
				Event:    store.EventMediaMessage,
				From:     inbound.From,
				To:       inbound.To,
				Time:     inbound.Time,
				FileType: inbound.FileType,
				FileName: inbound.FileName,
			},
			Chunk: core.Chunk{
				FileID: inbound.FileID,
				Index:  inbound.ChunkIndex,
				Count:  inbound.ChunkCount,
				Data:   inbound.FileData,
			},
		}, nil
	case proto.KindLoadHistory:
		return &core.Command{
			Kind:     core.CommandLoadHistory,
			WithUser: inbound.WithUser,
		}, nil
	case proto.KindRefresh:
		return &core.Command{Kind: core.CommandRefresh}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, inbound.Event)
	}
}

func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventMessage:
		return event.Message
	case core.EventOnlineUsers:
		return proto.NewOnlineUsers(event.Users)
	case core.EventHistory:
		return proto.NewHistory(event.Messages)
	case core.EventMediaFailed:
		out := proto.MediaFailed{Event: proto.EventMediaFailed, FileID: event.FileID}
		if event.Error != nil {
			out.Code = event.Error.Code
			out.Reason = event.Error.Message
		}
		return out
	default:
		return nil
	}
}
