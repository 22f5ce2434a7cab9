package api

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"

	"auctionhall/adapters/gormstore"
	redisAdapter "auctionhall/adapters/redis"
	internalS3 "auctionhall/adapters/s3"
	"auctionhall/adapters/sse"
	"auctionhall/auction"
)

type ServerImpl struct {
	engine    *auction.Engine
	lifecycle *auction.Lifecycle
	ledger    *auction.Ledger
	social    *auction.Social

	sseManager  sse.IConnectionManager[auction.Event]
	consumer    redisAdapter.IConsumer[auction.Event]
	publisher   *redisAdapter.EventPublisher
	uploader    *internalS3.ImageUploader
	htmlChecker *bluemonday.Policy
	textChecker *bluemonday.Policy
	redisClient *redis.Client
	publicKey   ed25519.PublicKey
	logger      *slog.Logger
	clock       func() time.Time

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
	closeOnce  sync.Once

	config ServerConfig
}

// components 是組裝 ServerImpl 需要的元件，測試時可以直接替換
type components struct {
	store       *gormstore.Store
	locker      auction.Locker
	notifier    auction.Notifier
	sseManager  sse.IConnectionManager[auction.Event]
	consumer    redisAdapter.IConsumer[auction.Event]
	publisher   *redisAdapter.EventPublisher
	uploader    *internalS3.ImageUploader
	redisClient *redis.Client
	publicKey   ed25519.PublicKey
	logger      *slog.Logger
	clock       func() time.Time
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"
	ctx := context.Background()
	logger := slog.Default()

	// 讀取驗證 access token 的公鑰
	publicKey, err := LoadPublicKey(config.Auth.PublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load public key, err=%w", op, err)
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database)
	if config.DB.Schema != "" {
		dsn += "&search_path=" + config.DB.Schema
	}
	db, err := gormstore.Open(dsn, config.DB.Schema)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	store, err := gormstore.New(db)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create store, err=%w", op, err)
	}
	if config.DB.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
		}
	}

	c := components{
		store:     store,
		publicKey: publicKey,
		logger:    logger,
	}

	if config.Redis.Enabled() {
		// 初始化Redis連線
		redisClient := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("[%s] Fail to connect to redis, err=%w", op, err)
		}
		c.redisClient = redisClient

		// 跨節點的拍賣鎖
		mutexOptions := []redisAdapter.AutoRenewMutexOption{}
		if config.Lock.Wait > 0 {
			mutexOptions = append(mutexOptions, redisAdapter.WithAutoRenewMutexMaxWait(config.Lock.Wait))
		}
		if config.Lock.Expiry > 0 {
			mutexOptions = append(mutexOptions, redisAdapter.WithAutoRenewMutexExpiry(config.Lock.Expiry))
		}
		if config.Lock.RetryDelay > 0 {
			mutexOptions = append(mutexOptions, redisAdapter.WithAutoRenewMutexRetryDelay(config.Lock.RetryDelay))
		}
		c.locker, err = redisAdapter.NewMutexLocker(
			redisClient,
			redisAdapter.WithMutexLockerLogger(logger),
			redisAdapter.WithMutexLockerKeyPrefix(config.Redis.KeyPrefix),
			redisAdapter.WithMutexLockerMutexOptions(mutexOptions...),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create mutex locker, err=%w", op, err)
		}

		// 事件先寫入 stream，再由每個節點的 consumer 轉發給 SSE 連線
		c.publisher, err = redisAdapter.NewEventPublisher(
			redisClient,
			redisAdapter.WithEventPublisherLogger(logger),
			redisAdapter.WithEventPublisherKeyPrefix(config.Redis.KeyPrefix),
			redisAdapter.WithEventPublisherStream(config.Redis.StreamKeys.Events),
			redisAdapter.WithEventPublisherSnapshotTTL(config.Redis.SnapshotTTL),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create event publisher, err=%w", op, err)
		}
		c.notifier = c.publisher
		c.consumer, err = redisAdapter.EventConsumer(
			redisClient,
			config.Redis.StreamKeys.Events,
			redisAdapter.WithConsumerLogger[auction.Event](logger),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create consumer, err=%w", op, err)
		}
		c.sseManager = sse.NewConnectionManager(
			sse.WithLogger[auction.Event](logger),
			sse.WithSubscriber[auction.Event](c.consumer, sse.EventChannel),
		)
	} else {
		logger.Warn("Redis is not configured, run in single node mode")
		c.locker = auction.NewLocalLocker(config.Lock.Wait)
		c.sseManager = sse.NewConnectionManager(sse.WithLogger[auction.Event](logger))
		c.notifier = sse.NewNotifier(c.sseManager)
	}

	if config.S3.Enabled() {
		// 初始化S3客戶端
		s3Client, err := internalS3.NewClient(ctx, internalS3.ClientConfig{
			Endpoint:        config.S3.Endpoint,
			Region:          config.S3.Region,
			AccessKeyID:     config.S3.AccessKeyID,
			SecretAccessKey: config.S3.SecretAccessKey,
			UsePathStyle:    config.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create S3 client, err=%w", op, err)
		}
		s3Operator, err := internalS3.NewS3Operator(s3Client, config.S3.Bucket, config.S3.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
		}
		c.uploader, err = internalS3.NewImageUploader(
			store,
			s3Operator,
			internalS3.WithUploaderLogger(logger),
			internalS3.WithUploaderRateLimit(config.S3.RateLimitPerHour),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create image uploader, err=%w", op, err)
		}
	}

	return newServerImpl(config, c)
}

func newServerImpl(config ServerConfig, c components) (*ServerImpl, error) {
	const op = "newServerImpl"
	if c.store == nil || c.locker == nil || c.sseManager == nil {
		return nil, errors.New("store, locker and sse manager are required")
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.notifier == nil {
		c.notifier = auction.NopNotifier{}
	}
	opts := []auction.Option{
		auction.WithLogger(c.logger),
		auction.WithClock(c.clock),
		auction.WithNotifier(c.notifier),
		auction.WithSweepBatchSize(config.Lifecycle.SweepBatchSize),
	}

	engine, err := auction.NewEngine(c.store, c.locker, opts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid engine, err=%w", op, err)
	}
	lifecycle, err := auction.NewLifecycle(c.store, c.locker, opts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create lifecycle controller, err=%w", op, err)
	}
	ledger, err := auction.NewLedger(c.store, opts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create ledger, err=%w", op, err)
	}
	social, err := auction.NewSocial(c.store, opts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create social service, err=%w", op, err)
	}

	return &ServerImpl{
		engine:      engine,
		lifecycle:   lifecycle,
		ledger:      ledger,
		social:      social,
		sseManager:  c.sseManager,
		consumer:    c.consumer,
		publisher:   c.publisher,
		uploader:    c.uploader,
		htmlChecker: bluemonday.UGCPolicy(),
		textChecker: bluemonday.StrictPolicy(),
		redisClient: c.redisClient,
		publicKey:   c.publicKey,
		logger:      c.logger.With(slog.String("caller", "ServerImpl")),
		clock:       c.clock,
		config:      config,
	}, nil
}

// Router 建立並註冊所有路由
func (impl *ServerImpl) Router(middlewares ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(middlewares...)
	router.Use(impl.authenticate())

	auctions := router.Group("/auctions")
	auctions.GET("", impl.ListAuctions)
	auctions.POST("", requireUser(), impl.PostAuction)
	auctions.GET("/:id", impl.GetAuction)
	auctions.GET("/:id/bids", impl.ListBids)
	auctions.POST("/:id/bids", requireUser(), impl.PostBid)
	auctions.POST("/:id/cancel", requireUser(), impl.CancelAuction)
	auctions.POST("/:id/like", requireUser(), impl.LikeAuction)
	auctions.DELETE("/:id/like", requireUser(), impl.UnlikeAuction)
	auctions.GET("/:id/comments", impl.ListComments)
	auctions.POST("/:id/comments", requireUser(), impl.PostComment)
	auctions.PUT("/:id/comments/:commentID", requireUser(), impl.EditComment)
	auctions.DELETE("/:id/comments/:commentID", requireUser(), impl.DeleteComment)
	auctions.GET("/:id/events", impl.GetAuctionEvents)

	if impl.uploader != nil {
		router.POST("/images", requireUser(), impl.PostImage)
	}
	return router
}

func (impl *ServerImpl) Start() {
	if impl.publisher != nil {
		// 啟動event publisher
		impl.publisher.Start()
	}
	if impl.consumer != nil {
		// 啟動consumer
		impl.consumer.Start()
	}
	// 啟動sse connection manager
	impl.sseManager.Start()

	// 啟動一個worker定期將過期的拍賣標記為已結束
	ctx, cancel := context.WithCancel(context.Background())
	impl.cancelFunc = cancel
	interval := impl.config.Lifecycle.SweepInterval
	if interval <= 0 {
		return
	}
	impl.logger.Info("Start expiry sweeper", slog.Duration("interval", interval))
	impl.wg.Add(1)
	go func() {
		defer impl.wg.Done()
		defer impl.logger.Info("Expiry sweeper stopped")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := impl.lifecycle.Sweep(ctx)
				if err != nil {
					impl.logger.Error("Fail to sweep expired auctions", slog.Any("error", err))
					continue
				}
				if n > 0 {
					impl.logger.Info("Sweep expired auctions", slog.Int("ended", n))
				}
			}
		}
	}()
}

func (impl *ServerImpl) Close() {
	impl.closeOnce.Do(func() {
		// 關閉worker
		if impl.cancelFunc != nil {
			impl.cancelFunc()
		}
		impl.wg.Wait()
		// 關閉sse connection manager
		impl.sseManager.Done()
		// 關閉consumer
		if impl.consumer != nil {
			impl.consumer.Close()
		}
		// 關閉publisher
		if impl.publisher != nil {
			impl.publisher.Close()
		}
		if impl.redisClient != nil {
			if err := impl.redisClient.Close(); err != nil {
				impl.logger.Warn("Fail to close redis client", slog.Any("error", err))
			}
		}
	})
}

// CloseStreams 關閉所有 SSE 串流，讓 HTTP server 可以正常關閉
func (impl *ServerImpl) CloseStreams() {
	impl.sseManager.Done()
}
