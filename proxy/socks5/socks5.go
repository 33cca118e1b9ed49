/*
Package socks5 实现 作为客户端 向 socks5代理 发起 udp associate, 并接收/发送 封装过的 udp 数据.

https://www.ietf.org/rfc/rfc1928.txt
*/
package socks5

const Name = "socks5"

// Version is socks5 version number.
const Version5 = 0x05

// SOCKS auth type
const (
	AuthNone     = 0x00
	AuthPassword = 0x02
)

// SOCKS request commands as defined in RFC 1928 section 4
const (
	CmdConnect      = 0x01
	CmdBind         = 0x02
	CmdUDPAssociate = 0x03
)

// SOCKS address types as defined in RFC 1928 section 4
const (
	ATypIP4    = 0x1
	ATypDomain = 0x3
	ATypIP6    = 0x4
)

// udp头部最大长度: 地址字段最长 256 (1字节长度+255字节域名), 加上 RSV RSV FRAG ATYP 4字节, 再加上 2字节端口
const MaxUDPHeaderLen = 256 + 4 + 2
