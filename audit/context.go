/*
Package audit 定义 detour 的调用约定: 把一个 stream 的 四个读写端 交给外部检测设备处理.

SmuxDetourClient 是一个实现, 它通过一条 smux 会话连接到检测设备,
每个 task 使用两个 stream: north 承载 客户端->上游 的数据, south 承载 上游->客户端 的数据.
设备在同一个 stream 上回写检测后的数据.
*/
package audit

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/serve"
	"github.com/e1732a364fed/vs_inspect/utils"
	"google.golang.org/protobuf/encoding/protowire"
)

type StreamDirection int32

const (
	DirectionNorth StreamDirection = 1
	DirectionSouth StreamDirection = 2
)

const MaxStreamHeaderLen = 64 * 1024

// StreamDetourContext 随 stream 一起交给 detour 客户端.
type StreamDetourContext struct {
	ServerConfig serve.ServerConfig
	QuitPolicy   *serve.QuitPolicy
	TaskNotes    *serve.ServerTaskNotes
	Upstream     netLayer.Addr
	Protocol     string

	payload []byte
}

func NewStreamDetourContext(sc serve.ServerConfig, quit *serve.QuitPolicy, notes *serve.ServerTaskNotes, upstream netLayer.Addr, protocol string) *StreamDetourContext {
	return &StreamDetourContext{
		ServerConfig: sc,
		QuitPolicy:   quit,
		TaskNotes:    notes,
		Upstream:     upstream,
		Protocol:     protocol,
	}
}

// SetPayload 设置 协议相关的上下文, 如 websocket 握手信息
func (c *StreamDetourContext) SetPayload(p []byte) {
	c.payload = p
}

func (c *StreamDetourContext) Payload() []byte {
	return c.payload
}

// Header 返回 指定方向的 stream 头部. south 只携带 task id.
func (c *StreamDetourContext) Header(dir StreamDirection) *StreamHeader {
	h := &StreamHeader{Direction: dir}
	if c.TaskNotes != nil {
		h.TaskID = append([]byte(nil), c.TaskNotes.ID[:]...)
	}
	if dir == DirectionSouth {
		return h
	}
	if c.ServerConfig != nil {
		h.ServerName = c.ServerConfig.Name()
	}
	if c.TaskNotes != nil {
		if c.TaskNotes.ClientAddr != nil {
			h.ClientAddr = c.TaskNotes.ClientAddr.String()
		}
		if c.TaskNotes.ServerAddr != nil {
			h.ServerAddr = c.TaskNotes.ServerAddr.String()
		}
	}
	h.Upstream = c.Upstream.String()
	h.Protocol = c.Protocol
	h.Payload = c.payload
	return h
}

// StreamHeader 是 每个 detour stream 开头的 头部, 以 varint长度 + protobuf wire 编码.
type StreamHeader struct {
	Direction  StreamDirection
	TaskID     []byte
	ServerName string
	ClientAddr string
	ServerAddr string
	Upstream   string
	Protocol   string
	Payload    []byte
}

const (
	hdrDirection protowire.Number = iota + 1
	hdrTaskID
	hdrServerName
	hdrClientAddr
	hdrServerAddr
	hdrUpstream
	hdrProtocol
	hdrPayload
)

func (h *StreamHeader) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, hdrDirection, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.Direction))

	appendBytes := func(num protowire.Number, v []byte) {
		if len(v) == 0 {
			return
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
	}
	appendStr := func(num protowire.Number, v string) {
		if v == "" {
			return
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	appendBytes(hdrTaskID, h.TaskID)
	appendStr(hdrServerName, h.ServerName)
	appendStr(hdrClientAddr, h.ClientAddr)
	appendStr(hdrServerAddr, h.ServerAddr)
	appendStr(hdrUpstream, h.Upstream)
	appendStr(hdrProtocol, h.Protocol)
	appendBytes(hdrPayload, h.Payload)
	return b
}

func UnmarshalStreamHeader(b []byte) (*StreamHeader, error) {
	h := &StreamHeader{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == hdrDirection && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			h.Direction = StreamDirection(v)
			b = b[n:]
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case hdrTaskID:
				h.TaskID = append([]byte(nil), v...)
			case hdrServerName:
				h.ServerName = string(v)
			case hdrClientAddr:
				h.ClientAddr = string(v)
			case hdrServerAddr:
				h.ServerAddr = string(v)
			case hdrUpstream:
				h.Upstream = string(v)
			case hdrProtocol:
				h.Protocol = string(v)
			case hdrPayload:
				h.Payload = append([]byte(nil), v...)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return h, nil
}

func WriteStreamHeader(w io.Writer, h *StreamHeader) error {
	_, err := w.Write(protowire.AppendBytes(nil, h.Marshal()))
	return err
}

func ReadStreamHeader(r *bufio.Reader) (*StreamHeader, error) {
	l, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if l > MaxStreamHeaderLen {
		return nil, utils.ErrInErr{ErrDesc: "detour stream header too long", ErrDetail: utils.ErrInvalidData, Data: l}
	}
	buf := make([]byte, l)
	if _, err = io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return UnmarshalStreamHeader(buf)
}
