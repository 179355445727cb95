package chat

import "time"

// Metrics はチャット処理の計測値を受け取る。
// internal/metrics のCollectorが実装する。
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	ConnectionReplaced()
	MessageAccepted()
	MessageRejected(reason string)
	StorageFailed()
	Delivered(d time.Duration)
	DeliveryFailed()
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()       {}
func (nopMetrics) ConnectionClosed()       {}
func (nopMetrics) ConnectionReplaced()     {}
func (nopMetrics) MessageAccepted()        {}
func (nopMetrics) MessageRejected(string)  {}
func (nopMetrics) StorageFailed()          {}
func (nopMetrics) Delivered(time.Duration) {}
func (nopMetrics) DeliveryFailed()         {}
