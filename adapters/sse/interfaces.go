//go:generate mockgen -package=sse -destination=mock.go -source=interfaces.go

package sse

// IChannel 定義了 SSE 頻道的介面
type IChannel[T any] interface {
	// Subscribe 建立一個新的訂閱並返回接收訊息的通道
	Subscribe() <-chan T
	// Unsubscribe 取消指定通道的訂閱
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll 取消所有訂閱
	UnsubscribeAll()
	// Broadcast 將訊息廣播給所有訂閱者，回傳因緩衝區已滿而丟棄的數量
	Broadcast(message T) int
	// IsIdle 檢查是否沒有訂閱者
	IsIdle() bool
}

// ISubscriber 是跨節點訊息的來源，例如 Redis stream 的消費者
type ISubscriber[T any] interface {
	Subscribe() <-chan T
}

// IConnectionManager 定義了 SSE 連線管理員的介面
type IConnectionManager[T any] interface {
	// Start 啟動 ConnectionManager，開始轉發訂閱來源的訊息。
	Start()
	// Done 停止 ConnectionManager，關閉所有訂閱。
	Done()
	// Subscribe 註冊並訂閱指定頻道，返回一個新的 chan Message。
	Subscribe(channelName string) (<-chan T, error)
	// Publish 將資料推送給本節點上指定頻道的訂閱者。
	Publish(channelName string, data T) error
	// Unsubscribe 取消訂閱指定頻道。
	Unsubscribe(channelName string, ch <-chan T)
}
