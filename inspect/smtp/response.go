package smtp

import (
	"bytes"
	"errors"
	"strconv"
)

// 响应行的最大长度, 包括结尾的 CRLF. rfc5321 4.5.3.1.5 要求 512, 这里放宽一些.
const MaxLineSize = 2048

type ReplyCode uint16

const (
	ServiceReady ReplyCode = 220
	NoService    ReplyCode = 554
)

func (c ReplyCode) String() string {
	return strconv.Itoa(int(c))
}

func parseReplyCode(b []byte) (ReplyCode, bool) {
	if len(b) != 3 {
		return 0, false
	}
	if b[0] < '2' || b[0] > '5' || b[1] < '0' || b[1] > '5' || b[2] < '0' || b[2] > '9' {
		return 0, false
	}
	return ReplyCode(b[0]-'0')*100 + ReplyCode(b[1]-'0')*10 + ReplyCode(b[2]-'0'), true
}

var (
	ErrNoTrailingSequence = errors.New("no trailing CRLF")
	ErrTooShort           = errors.New("response line too short")
	ErrInvalidReplyCode   = errors.New("invalid reply code")
	ErrInvalidDelimiter   = errors.New("invalid delimiter after reply code")
	ErrReplyCodeChanged   = errors.New("reply code changed in multi-line response")
)

var crlf = []byte("\r\n")

// ResponseParser 解析一个 (可能是多行的) smtp 响应. 多行响应的每一行必须使用相同的 reply code.
//
//	250-first line
//	250 last line
type ResponseParser struct {
	code      ReplyCode
	multiline bool
}

// FeedLine 解析一行, 返回 reply code 之后的 文本部分. line 必须以 CRLF 结尾.
func (p *ResponseParser) FeedLine(line []byte) ([]byte, error) {
	if !bytes.HasSuffix(line, crlf) {
		return nil, ErrNoTrailingSequence
	}
	line = line[:len(line)-2]
	if len(line) < 3 {
		return nil, ErrTooShort
	}

	code, ok := parseReplyCode(line[:3])
	if !ok {
		return nil, ErrInvalidReplyCode
	}
	if p.code == 0 {
		p.code = code
	} else if p.code != code {
		return nil, ErrReplyCodeChanged
	}

	if len(line) == 3 {
		p.multiline = false
		return line[3:], nil
	}
	switch line[3] {
	case ' ':
		p.multiline = false
	case '-':
		p.multiline = true
	default:
		return nil, ErrInvalidDelimiter
	}
	return line[4:], nil
}

func (p *ResponseParser) Code() ReplyCode {
	return p.code
}

// Finished 在最后一行 (code 后是空格或没有文本) 被解析后返回 true
func (p *ResponseParser) Finished() bool {
	return p.code != 0 && !p.multiline
}
