package netLayer

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/e1732a364fed/vs_inspect/utils"
	"go.uber.org/zap"
)

func loopAccept(listener net.Listener, acceptFunc func(net.Conn)) {
	for {
		newc, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				if ce := utils.CanLogDebug("local listener closed"); ce != nil {
					ce.Write(zap.Error(err))
				}
				break
			}
			errStr := err.Error()
			if ce := utils.CanLogWarn("failed to accept connection"); ce != nil {
				ce.Write(zap.Error(err))
			}
			if strings.Contains(errStr, "too many") {
				if ce := utils.CanLogWarn("To many incoming conn! Will Sleep."); ce != nil {
					ce.Write(zap.String("err", errStr))
				}
				time.Sleep(time.Millisecond * 500)
			}
			continue
		}
		go acceptFunc(newc)
	}
}

// ListenAndAccept 监听tcp, 若 withProxyProtocol 为true, 则要求每个连接携带 PROXY protocol 头部.
//
// 非阻塞，在自己的goroutine中监听. 关闭返回的 Listener 即可停止监听.
func ListenAndAccept(network, addr string, withProxyProtocol bool, acceptFunc func(net.Conn)) (net.Listener, error) {
	if network == "" {
		network = "tcp"
	}
	listener, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	if withProxyProtocol {
		listener = WrapProxyProtocolListener(listener)
	}
	go loopAccept(listener, acceptFunc)
	return listener, nil
}
