package main

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/e1732a364fed/vs_inspect/config"
	"github.com/e1732a364fed/vs_inspect/netLayer"
	"github.com/e1732a364fed/vs_inspect/proxy/socks5"
	"github.com/e1732a364fed/vs_inspect/utils"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const udpBatchSize = 8

// udpForward 把本地收到的udp包 通过 socks5 peer 的 udp associate 发往固定的 upstream,
// 回包 发给最近一个 发送过数据的 本地客户端.
type udpForward struct {
	env      *inspectEnv
	sc       *config.ServerConf
	local    net.PacketConn
	upstream netLayer.Addr
	peer     *config.PeerConf

	recv *socks5.UDPConnectRemoteRecv
	send *socks5.UDPConnectRemoteSend

	lastClient atomic.Value //net.Addr
	closeOnce  sync.Once
}

func startUDPForward(env *inspectEnv, sc *config.ServerConf, peer *config.PeerConf) (io.Closer, error) {
	upstream, err := sc.UpstreamAddr()
	if err != nil {
		return nil, err
	}
	upstream.Network = "udp"

	recv, send, err := socks5.DialUDPConnect(peer.Address, upstream, upstreamDialTimeout, false)
	if err != nil {
		return nil, err
	}

	local, err := net.ListenPacket("udp", sc.Listen)
	if err != nil {
		recv.Close()
		return nil, err
	}

	uf := &udpForward{
		env:      env,
		sc:       sc,
		local:    local,
		upstream: upstream,
		peer:     peer,
		recv:     recv,
		send:     send,
	}
	go uf.loopLocal()
	go uf.loopRemote()

	if ce := utils.CanLogInfo("udp forward started"); ce != nil {
		ce.Write(
			zap.String("name", sc.Name()),
			zap.String("listen", local.LocalAddr().String()),
			zap.String("peer", peer.Address),
			zap.String("upstream", upstream.String()),
		)
	}
	return uf, nil
}

func (uf *udpForward) Close() error {
	uf.closeOnce.Do(func() {
		uf.local.Close()
		uf.recv.Close()
	})
	return nil
}

func (uf *udpForward) loopLocal() {
	buf := utils.GetPacket()
	defer utils.PutPacket(buf)

	for {
		n, addr, err := uf.local.ReadFrom(buf)
		if err != nil {
			uf.Close()
			return
		}
		uf.lastClient.Store(addr)
		if err = uf.send.Send(buf[:n]); err != nil {
			if ce := utils.CanLogWarn("udp forward send failed"); ce != nil {
				ce.Write(zap.String("name", uf.sc.Name()), zap.Error(err))
			}
		}
	}
}

func (uf *udpForward) loopRemote() {
	defer uf.Close()

	if netLayer.SystemCanBatchRecv {
		uf.loopRemoteBatch()
		return
	}

	buf := utils.GetPacket()
	defer utils.PutPacket(buf)
	for {
		off, n, err := uf.recv.RecvPacket(buf)
		if err != nil {
			if uf.handleRecvErr(err) {
				return
			}
			continue
		}
		uf.writeBack(buf[off:n])
	}
}

func (uf *udpForward) loopRemoteBatch() {
	pkts := make([]netLayer.UDPPacket, udpBatchSize)
	for i := range pkts {
		pkts[i].Buf = utils.GetPacket()
	}
	defer func() {
		for i := range pkts {
			utils.PutPacket(pkts[i].Buf)
		}
	}()

	for {
		count, err := uf.recv.RecvPackets(pkts)
		if err != nil {
			if uf.handleRecvErr(err) {
				return
			}
			continue
		}
		for i := 0; i < count; i++ {
			uf.writeBack(pkts[i].Payload())
		}
	}
}

// handleRecvErr 返回 true 表示会话应当结束. 非法包 只丢弃.
func (uf *udpForward) handleRecvErr(err error) bool {
	if errors.Is(err, netLayer.ErrUDPInvalidPacket) {
		if ce := utils.CanLogDebug("udp forward dropped invalid packet"); ce != nil {
			ce.Write(zap.String("name", uf.sc.Name()), zap.Error(err))
		}
		return false
	}
	if uf.env.quit.ForceQuitting() {
		return true
	}
	if ce := utils.CanLogWarn("udp forward session ended"); ce != nil {
		ce.Write(zap.String("name", uf.sc.Name()), zap.Error(err))
	}
	return true
}

func (uf *udpForward) writeBack(payload []byte) {
	addr, _ := uf.lastClient.Load().(net.Addr)
	if addr == nil {
		return
	}
	uf.local.WriteTo(payload, addr)
}
