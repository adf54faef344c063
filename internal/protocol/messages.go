package protocol

import (
	"strings"

	"github.com/google/uuid"

	"ely.by/changeskin/internal/db"
	"ely.by/changeskin/internal/utils"
)

const (
	TagUpdateSkin         = "UpdateSkin"
	TagPermissionsCheck   = "PermissionsCheck"
	TagPermissionsSuccess = "PermissionsSuccess"
	TagPermissionsFailure = "PermissionsFailure"
)

// DefaultChannel is the name of the channel the messages are carried on
const DefaultChannel = "ChangeSkin"

type Message interface {
	Tag() string
	writeTo(w *writer)
}

// UpdateSkin asks the backend to refresh the player's skin in place, since the proxy has already resolved it.
// The legacy shape carries the skin itself, in that case Skin is set
type UpdateSkin struct {
	PlayerName string
	Skin       *db.Record
	// Reset is set by the legacy shape with the "null" value, which means the default skin
	Reset bool
}

func (*UpdateSkin) Tag() string {
	return TagUpdateSkin
}

func (m *UpdateSkin) writeTo(w *writer) {
	switch {
	case m.Reset:
		w.writeString("null")
	case m.Skin != nil:
		w.writeString(m.Skin.EncodedValue())
		w.writeString(m.Skin.Signature())
		w.writeString(m.PlayerName)
	default:
		w.writeString(m.PlayerName)
	}
}

// PermissionsCheck asks the side holding the permissions whether the invoker may apply the skin to the receiver
type PermissionsCheck struct {
	Id       int32
	Skin     *db.Record
	Receiver uuid.UUID
	// SkinPerm requests the per skin owner permission check in addition to the command one
	SkinPerm bool
	Op       bool
}

func (*PermissionsCheck) Tag() string {
	return TagPermissionsCheck
}

func (m *PermissionsCheck) writeTo(w *writer) {
	w.writeInt(m.Id)
	w.writeSkin(m.Skin)
	w.writeString(m.Receiver.String())
	w.writeBool(m.SkinPerm)
	w.writeBool(m.Op)
}

// PermissionsSuccess echoes the checked skin back, so the requester can apply it right away
type PermissionsSuccess struct {
	Id       int32
	Skin     *db.Record
	Receiver uuid.UUID
}

func (*PermissionsSuccess) Tag() string {
	return TagPermissionsSuccess
}

func (m *PermissionsSuccess) writeTo(w *writer) {
	w.writeInt(m.Id)
	w.writeSkin(m.Skin)
	w.writeString(m.Receiver.String())
}

type PermissionsFailure struct {
	Id int32
}

func (*PermissionsFailure) Tag() string {
	return TagPermissionsFailure
}

func (m *PermissionsFailure) writeTo(w *writer) {
	w.writeInt(m.Id)
}

// Encode serializes the message prefixed with its tag
func Encode(message Message) ([]byte, error) {
	w := &writer{}
	w.writeString(message.Tag())
	message.writeTo(w)
	if w.err != nil {
		return nil, w.err
	}

	return w.buf, nil
}

// PeekTag reads only the tag of the message
func PeekTag(data []byte) (string, error) {
	r := &reader{buf: data}
	return r.readString("tag")
}

// Decode parses the message. Tags are matched case-insensitively.
// Any malformed input results in *Error
func Decode(data []byte) (Message, error) {
	r := &reader{buf: data}
	tag, err := r.readString("tag")
	if err != nil {
		return nil, err
	}

	var message Message
	switch {
	case strings.EqualFold(tag, TagUpdateSkin):
		message, err = decodeUpdateSkin(r)
	case strings.EqualFold(tag, TagPermissionsCheck):
		message, err = decodePermissionsCheck(r)
	case strings.EqualFold(tag, TagPermissionsSuccess):
		message, err = decodePermissionsSuccess(r)
	case strings.EqualFold(tag, TagPermissionsFailure):
		message, err = decodePermissionsFailure(r)
	default:
		return nil, violation("unknown tag %q", tag)
	}

	if err != nil {
		return nil, err
	}

	if err := r.expectEnd(); err != nil {
		return nil, err
	}

	return message, nil
}

func decodeUpdateSkin(r *reader) (*UpdateSkin, error) {
	var fields []string
	for r.remaining() > 0 {
		if len(fields) == 3 {
			return nil, violation("too many fields for the %s message", TagUpdateSkin)
		}

		field, err := r.readString("field")
		if err != nil {
			return nil, err
		}

		fields = append(fields, field)
	}

	switch len(fields) {
	case 0:
		return nil, violation("the %s message has no fields", TagUpdateSkin)
	case 1:
		// The legacy shape resets the skin with the "null" value
		if fields[0] == "null" {
			return &UpdateSkin{Reset: true}, nil
		}

		return &UpdateSkin{PlayerName: fields[0]}, nil
	}

	skin, err := decodeSkin(fields[0], fields[1])
	if err != nil {
		return nil, err
	}

	message := &UpdateSkin{Skin: skin}
	// Outdated senders don't pass the player name
	if len(fields) == 3 {
		message.PlayerName = fields[2]
	}

	return message, nil
}

func decodePermissionsCheck(r *reader) (*PermissionsCheck, error) {
	id, skin, receiver, err := readSkinExchange(r)
	if err != nil {
		return nil, err
	}

	skinPerm, err := r.readBool("skinPerm")
	if err != nil {
		return nil, err
	}

	op, err := r.readBool("op")
	if err != nil {
		return nil, err
	}

	return &PermissionsCheck{
		Id:       id,
		Skin:     skin,
		Receiver: receiver,
		SkinPerm: skinPerm,
		Op:       op,
	}, nil
}

func decodePermissionsSuccess(r *reader) (*PermissionsSuccess, error) {
	id, skin, receiver, err := readSkinExchange(r)
	if err != nil {
		return nil, err
	}

	return &PermissionsSuccess{
		Id:       id,
		Skin:     skin,
		Receiver: receiver,
	}, nil
}

func decodePermissionsFailure(r *reader) (*PermissionsFailure, error) {
	id, err := r.readInt("id")
	if err != nil {
		return nil, err
	}

	return &PermissionsFailure{Id: id}, nil
}

func readSkinExchange(r *reader) (int32, *db.Record, uuid.UUID, error) {
	id, err := r.readInt("id")
	if err != nil {
		return 0, nil, uuid.Nil, err
	}

	value, err := r.readString("value")
	if err != nil {
		return 0, nil, uuid.Nil, err
	}

	signature, err := r.readString("signature")
	if err != nil {
		return 0, nil, uuid.Nil, err
	}

	rawReceiver, err := r.readString("receiver")
	if err != nil {
		return 0, nil, uuid.Nil, err
	}

	skin, err := decodeSkin(value, signature)
	if err != nil {
		return 0, nil, uuid.Nil, err
	}

	receiver, err := utils.ParseUuid(rawReceiver)
	if err != nil {
		return 0, nil, uuid.Nil, violation("invalid receiver uuid %q", rawReceiver)
	}

	return id, skin, receiver, nil
}

func decodeSkin(value string, signature string) (*db.Record, error) {
	skin, err := db.DecodeRecord(value, signature)
	if err != nil {
		return nil, violation("invalid skin: %s", err)
	}

	return skin, nil
}
