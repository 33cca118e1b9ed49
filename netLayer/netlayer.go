/*
Package netLayer contains definitions in network layer AND transport layer.

本包有 地址, 双向转发(relay), 限速与流量统计, udp批量读取, 控制连接探测, cidr 匹配 以及 PROXY protocol 监听 等功能。
*/
package netLayer

import (
	"io"
	"syscall"

	"github.com/e1732a364fed/vs_inspect/utils"
	"go.uber.org/zap"
)

// GetRawConn 只对 net.IPConn, net.TCPConn, net.UDPConn, net.UnixConn 这类 基础连接 有效
func GetRawConn(reader io.Reader) syscall.RawConn {
	if sc, ok := reader.(syscall.Conn); ok {
		rawConn, err := sc.SyscallConn()
		if err != nil {
			if ce := utils.CanLogDebug("can't convert syscall.Conn to syscall.RawConn"); ce != nil {
				ce.Write(zap.Any("reader", reader), zap.Error(err))
			}
			return nil
		}
		return rawConn
	}
	return nil
}
