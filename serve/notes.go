package serve

import (
	"net"
	"time"

	"github.com/e1732a364fed/vs_inspect/utils"
)

// ServerTaskNotes 记录一个 task 的基本信息, 在该 task 的整个生命周期中只读.
type ServerTaskNotes struct {
	ID         [utils.UUID_BytesLen]byte
	ClientAddr net.Addr
	ServerAddr net.Addr
	CreatedAt  time.Time

	User *User //可为nil
}

func NewServerTaskNotes(clientAddr, serverAddr net.Addr, user *User) *ServerTaskNotes {
	return &ServerTaskNotes{
		ID:         utils.GenerateUUID_v4(),
		ClientAddr: clientAddr,
		ServerAddr: serverAddr,
		CreatedAt:  time.Now(),
		User:       user,
	}
}

func (n *ServerTaskNotes) IDStr() string {
	return utils.UUIDToStr(n.ID[:])
}

// ServerIP 返回本地监听的ip, 未知时返回 nil
func (n *ServerTaskNotes) ServerIP() net.IP {
	switch a := n.ServerAddr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	}
	return nil
}
