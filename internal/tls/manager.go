// Package tls builds the server TLS configuration from cert files, ACME autocert, or a local dev certificate.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"sync"

	"marketplace-auth/internal/config"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

var ErrNoCertificate = errors.New("no TLS certificate configured")

type TLSManager struct {
	cfg        config.ServerConfig
	production bool
	autoCert   *autocert.Manager
	logger     *zap.Logger

	mu   sync.Mutex
	file *tls.Certificate
	dev  *tls.Certificate
}

func NewTLSManager(cfg *config.Config, logger *zap.Logger) *TLSManager {
	manager := &TLSManager{
		cfg:        cfg.Server,
		production: cfg.IsProduction(),
		logger:     logger,
	}

	if manager.cfg.AutoCert && manager.cfg.EnableTLS {
		manager.setupAutoCert()
	}

	return manager
}

func (m *TLSManager) setupAutoCert() {
	if err := os.MkdirAll(m.cfg.AutoCertDir, 0700); err != nil {
		m.logger.Warn("Could not create autocert directory", zap.Error(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.cfg.Domain),
		Cache:      autocert.DirCache(m.cfg.AutoCertDir),
		Email:      m.cfg.Email,
	}

	m.logger.Info("AutoCert configured",
		zap.String("domain", m.cfg.Domain),
		zap.String("cache_dir", m.cfg.AutoCertDir))
}

// GetCertificate tries autocert, then the configured key pair, then (outside production) a self-signed certificate.
func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		m.logger.Warn("AutoCert lookup failed", zap.String("server_name", hello.ServerName), zap.Error(err))
	}

	if cert, err := m.fileCertificate(); err != nil {
		return nil, err
	} else if cert != nil {
		return cert, nil
	}

	if m.production {
		return nil, ErrNoCertificate
	}
	return m.devCertificate()
}

func (m *TLSManager) fileCertificate() (*tls.Certificate, error) {
	if m.cfg.CertFile == "" || m.cfg.KeyFile == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil {
		return m.file, nil
	}
	cert, err := tls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	m.file = &cert
	return m.file, nil
}

func (m *TLSManager) devCertificate() (*tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dev != nil {
		return m.dev, nil
	}
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if m.cfg.Domain != "" {
		hosts = append([]string{m.cfg.Domain}, hosts...)
	}

	cert, err := NewDevCertGenerator(m.cfg.AutoCertDir, m.logger).GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	m.dev = &cert
	return m.dev, nil
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

// GetAutocertManager returns nil when autocert is disabled. Its HTTPHandler serves ACME challenges.
func (m *TLSManager) GetAutocertManager() *autocert.Manager {
	return m.autoCert
}
