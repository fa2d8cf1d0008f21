package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kis-gateway/internal/config"
)

// serve 在 ctx 结束前持续提供服务，随后按 shutdown_timeout 优雅关闭。
func serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", addr, err)
	}
	return serveListener(ctx, cfg, listener, handler, logger)
}

func serveListener(ctx context.Context, cfg config.ServerConfig, listener net.Listener, handler http.Handler, logger *zap.Logger) error {
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("网关接口已启动", zap.String("addr", listener.Addr().String()))

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("网关服务异常: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("关闭网关服务失败", zap.Error(err))
		return err
	}

	logger.Info("网关接口已停止")
	return nil
}
