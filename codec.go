package replica

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeMessage serializes msg as a protobuf google.protobuf.Struct. Values
// in data trees must be representable by structpb.NewValue; numbers come
// back as float64 from DecodeMessage.
func EncodeMessage(msg Message) ([]byte, error) {
	m := map[string]interface{}{"kind": int(msg.Kind)}
	switch msg.Kind {
	case MessageCreate:
		if msg.Create == nil {
			return nil, fmt.Errorf("encode %s: missing payload", msg.Kind)
		}
		m["create"] = map[string]interface{}{
			"id":    msg.Create.ID.String(),
			"class": msg.Create.ClassTag,
			"data":  orEmpty(msg.Create.Data),
			"tags":  orEmpty(msg.Create.Tags),
			"seq":   msg.Create.Seq,
		}
	case MessageOperation:
		if msg.Op == nil {
			return nil, fmt.Errorf("encode %s: missing payload", msg.Kind)
		}
		op := map[string]interface{}{
			"id":    msg.Op.ID.String(),
			"seq":   msg.Op.Seq,
			"code":  int(msg.Op.Code),
			"path":  msg.Op.Path,
			"index": msg.Op.Index,
			"value": msg.Op.Value,
		}
		if msg.Op.Values != nil {
			op["values"] = msg.Op.Values
		}
		m["op"] = op
	case MessageChildren:
		m["parent"] = msg.Parent.String()
		m["children"] = idList(msg.Children)
	case MessageDestroy:
		m["destroyed"] = idList(msg.Destroyed)
	default:
		return nil, fmt.Errorf("encode: %w: %s", ErrUnknownMessage, msg.Kind)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind, err)
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Kind, err)
	}
	return b, nil
}

// DecodeMessage parses the output of EncodeMessage.
func DecodeMessage(b []byte) (Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Message{}, fmt.Errorf("unmarshal: %w", err)
	}
	m := s.AsMap()
	msg := Message{Kind: MessageKind(number(m["kind"]))}
	var err error
	switch msg.Kind {
	case MessageCreate:
		c, ok := m["create"].(map[string]interface{})
		if !ok {
			return Message{}, fmt.Errorf("decode %s: missing payload", msg.Kind)
		}
		cr := &Creation{ClassTag: str(c["class"]), Seq: uint64(number(c["seq"]))}
		if cr.ID, err = ParseID(str(c["id"])); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", msg.Kind, err)
		}
		cr.Data, _ = c["data"].(map[string]interface{})
		cr.Tags, _ = c["tags"].(map[string]interface{})
		msg.Create = cr
	case MessageOperation:
		o, ok := m["op"].(map[string]interface{})
		if !ok {
			return Message{}, fmt.Errorf("decode %s: missing payload", msg.Kind)
		}
		op := &Operation{
			Seq:   uint64(number(o["seq"])),
			Code:  OpCode(number(o["code"])),
			Path:  str(o["path"]),
			Index: int(number(o["index"])),
			Value: o["value"],
		}
		if op.ID, err = ParseID(str(o["id"])); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", msg.Kind, err)
		}
		op.Values, _ = o["values"].(map[string]interface{})
		msg.Op = op
	case MessageChildren:
		if msg.Parent, err = ParseID(str(m["parent"])); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", msg.Kind, err)
		}
		if msg.Children, err = parseIDList(m["children"]); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", msg.Kind, err)
		}
	case MessageDestroy:
		if msg.Destroyed, err = parseIDList(m["destroyed"]); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", msg.Kind, err)
		}
	default:
		return Message{}, fmt.Errorf("decode: %w: %s", ErrUnknownMessage, msg.Kind)
	}
	return msg, nil
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func idList(ids []ID) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseIDList(v interface{}) ([]ID, error) {
	list, _ := v.([]interface{})
	out := make([]ID, 0, len(list))
	for _, x := range list {
		id, err := ParseID(str(x))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func number(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
