package http

import (
	"encoding/base64"
	"encoding/json"

	"github.com/vovakirdan/lanchat-server/internal/core"
	"github.com/vovakirdan/lanchat-server/internal/proto"
)

// inboundToCommand maps a client frame onto a core command. A non-nil
// *proto.Error is reported back to the client and the connection stays up.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeAuthenticate:
		var data proto.AuthenticateData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badPayload()
		}
		return &core.Command{Kind: core.CommandAuthenticate, Username: data.Username}, nil
	case proto.InboundTypePrivateMessage:
		var data proto.PrivateMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badPayload()
		}
		return &core.Command{
			Kind:      core.CommandSendPrivate,
			To:        data.To,
			Body:      data.Message,
			Timestamp: data.Timestamp,
		}, nil
	case proto.InboundTypeBroadcastMessage:
		var data proto.BroadcastMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badPayload()
		}
		return &core.Command{
			Kind:      core.CommandSendBroadcast,
			Body:      data.Message,
			Timestamp: data.Timestamp,
		}, nil
	case proto.InboundTypeFileShare:
		var data proto.FileShareData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badPayload()
		}
		raw, err := base64.StdEncoding.DecodeString(data.FileData)
		if err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "fileData must be base64"}
		}
		return &core.Command{
			Kind:      core.CommandShareFile,
			To:        data.To,
			Timestamp: data.Timestamp,
			File: &core.Attachment{
				Name:     data.Filename,
				MimeType: data.FileType,
				Data:     raw,
			},
		}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func badPayload() *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed payload"}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventUserStatus:
		status := proto.StatusOffline
		if event.Status.Online {
			status = proto.StatusOnline
		}
		online := event.Status.OnlineUsers
		if online == nil {
			online = []string{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserStatus,
			Data: proto.EventUserStatusData{
				Username:    event.Status.Username,
				Status:      status,
				OnlineUsers: online,
			},
		}
	case core.EventPrivateMessage, core.EventBroadcastMessage:
		name := proto.EventPrivateMessage
		if event.Kind == core.EventBroadcastMessage {
			name = proto.EventBroadcastMessage
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data: proto.EventMessageData{
				From:      event.Message.From,
				To:        event.Message.To,
				Message:   event.Message.Body,
				Timestamp: event.Message.Timestamp,
				MessageID: event.Message.ID,
			},
		}
	case core.EventFileReceive:
		msg := event.Message
		data := proto.EventFileReceiveData{
			From:      msg.From,
			To:        msg.To,
			Timestamp: msg.Timestamp,
			MessageID: msg.ID,
		}
		if msg.File != nil {
			data.Filename = msg.File.Name
			data.FileType = msg.File.MimeType
			data.FileData = base64.StdEncoding.EncodeToString(msg.File.Data)
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventFileReceive,
			Data:  data,
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
