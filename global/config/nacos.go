package config

import (
	"sync"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// NacosSource 从 nacos 读取 yaml 配置，并可监听变化
type NacosSource struct {
	cfg    NacosConfig
	client config_client.IConfigClient

	mu      sync.RWMutex
	current string
}

func NewNacosSource(cfg NacosConfig) (*NacosSource, error) {
	serverConfigs := []constant.ServerConfig{
		*constant.NewServerConfig(cfg.Addr, cfg.Port),
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithTimeoutMs(5000),
		constant.WithNamespaceId(cfg.Namespace),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel("warn"),
	)

	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, errs.ErrUnavailable.WrapMsg("nacos config client", "addr", cfg.Addr, "err", err)
	}
	return &NacosSource{cfg: cfg, client: client}, nil
}

func (s *NacosSource) Fetch() (string, error) {
	content, err := s.client.GetConfig(vo.ConfigParam{
		DataId: s.cfg.DataID,
		Group:  s.cfg.Group,
	})
	if err != nil {
		return "", err
	}
	s.update(content)
	return content, nil
}

// Watch 配置变化时回调；回调里自行 Apply 到配置副本
func (s *NacosSource) Watch(onChange func(content string)) error {
	return s.client.ListenConfig(vo.ConfigParam{
		DataId: s.cfg.DataID,
		Group:  s.cfg.Group,
		OnChange: func(namespace, group, dataId, data string) {
			logger.Info("nacos config changed", zap.String("dataId", dataId), zap.String("group", group))
			s.update(data)
			onChange(data)
		},
	})
}

func (s *NacosSource) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *NacosSource) Close() {
	_ = s.client.CancelListenConfig(vo.ConfigParam{DataId: s.cfg.DataID, Group: s.cfg.Group})
	s.client.CloseClient()
}

func (s *NacosSource) update(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = data
}
