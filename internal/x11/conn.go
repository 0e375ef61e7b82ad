package x11

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/Maximelego/custom-workspaces/internal/rules"
)

// display is the EWMH surface the backend needs.
type display interface {
	NumberOfDesktops() (int, error)
	SetNumberOfDesktops(n int) error
	SetCurrentDesktop(index int) error
	SetWindowDesktop(win xproto.Window, index int) error
	ClientList() ([]xproto.Window, error)
	AppID(win xproto.Window) string
	Title(win xproto.Window) string
	// WatchClientList calls onChange whenever _NET_CLIENT_LIST changes,
	// until stop is called.
	WatchClientList(onChange func()) (stop func(), err error)
	Close()
}

type xdisplay struct {
	xu *xgbutil.XUtil
}

func dial() (*xdisplay, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect to X server: %w", err)
	}
	return &xdisplay{xu: xu}, nil
}

func (d *xdisplay) NumberOfDesktops() (int, error) {
	n, err := ewmh.NumberOfDesktopsGet(d.xu)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (d *xdisplay) SetNumberOfDesktops(n int) error {
	return ewmh.NumberOfDesktopsReq(d.xu, n)
}

func (d *xdisplay) SetCurrentDesktop(index int) error {
	return ewmh.CurrentDesktopReq(d.xu, index)
}

func (d *xdisplay) SetWindowDesktop(win xproto.Window, index int) error {
	return ewmh.WmDesktopReq(d.xu, win, uint(index))
}

func (d *xdisplay) ClientList() ([]xproto.Window, error) {
	return ewmh.ClientListGet(d.xu)
}

// AppID prefers the GTK application id and falls back to the WM_CLASS
// class.
func (d *xdisplay) AppID(win xproto.Window) string {
	if id, err := xprop.PropValStr(xprop.GetProperty(d.xu, win, "_GTK_APPLICATION_ID")); err == nil && id != "" {
		return rules.NormalizeAppID(id)
	}
	if class, err := icccm.WmClassGet(d.xu, win); err == nil && class != nil {
		return class.Class
	}
	return ""
}

func (d *xdisplay) Title(win xproto.Window) string {
	if title, err := ewmh.WmNameGet(d.xu, win); err == nil {
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}
	if title, err := icccm.WmNameGet(d.xu, win); err == nil {
		return strings.TrimSpace(title)
	}
	return ""
}

// WatchClientList opens a dedicated connection so its event loop can be
// torn down without disturbing request traffic on the main one.
func (d *xdisplay) WatchClientList(onChange func()) (func(), error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect to X server: %w", err)
	}
	atom, err := xprop.Atm(xu, "_NET_CLIENT_LIST")
	if err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("intern _NET_CLIENT_LIST: %w", err)
	}
	root := xu.RootWin()
	if err := xwindow.New(xu, root).Listen(xproto.EventMaskPropertyChange); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("listen on root window: %w", err)
	}
	xevent.PropertyNotifyFun(func(_ *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		if ev.Atom == atom {
			onChange()
		}
	}).Connect(xu, root)

	done := make(chan struct{})
	go func() {
		defer close(done)
		xevent.Main(xu)
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			xevent.Detach(xu, root)
			xevent.Quit(xu)
			xu.Conn().Close()
			<-done
		})
	}, nil
}

func (d *xdisplay) Close() {
	d.xu.Conn().Close()
}
