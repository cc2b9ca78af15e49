package factory

import (
	"fmt"
	"strings"

	"github.com/truthvision/truthvision-go/internal/config"
	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/media"
	"github.com/truthvision/truthvision-go/internal/observer"
	"github.com/truthvision/truthvision-go/internal/storage"
	"github.com/truthvision/truthvision-go/internal/submission"
	"github.com/truthvision/truthvision-go/pkg/validation"
)

// StorageType represents different types of media sources
type StorageType string

const (
	// HTTPStorage for http(s) URLs
	HTTPStorage StorageType = "http"
	// AzureStorage for azblob:// references
	AzureStorage StorageType = "azure"
	// LocalStorage for local file system paths
	LocalStorage StorageType = "local"
)

// StorageTypeFor classifies a media reference by where it lives
func StorageTypeFor(ref string) (StorageType, error) {
	if !validation.IsRemote(ref) {
		return LocalStorage, nil
	}
	scheme, _, _ := strings.Cut(strings.TrimSpace(ref), "://")
	switch strings.ToLower(scheme) {
	case validation.SchemeHTTP, validation.SchemeHTTPS:
		return HTTPStorage, nil
	case validation.SchemeAzBlob:
		return AzureStorage, nil
	default:
		return "", apperrors.NewValidationError("URL scheme not allowed", nil)
	}
}

// SourceFactory creates media sources
type SourceFactory interface {
	CreateSource(storageType StorageType) (storage.Source, error)
	// Resolve picks the source that can fetch ref
	Resolve(ref string) (storage.Source, error)
}

// sourceFactory implements SourceFactory
type sourceFactory struct {
	http  *storage.HTTPSource
	azure *storage.AzureSource
	local *storage.FileSource
}

// NewSourceFactory builds every source the configuration enables
func NewSourceFactory(cfg *config.Config) (SourceFactory, error) {
	validator := validation.NewURLValidatorWithOptions(
		[]string{validation.SchemeHTTP, validation.SchemeHTTPS}, cfg.AllowedSourceHosts)

	f := &sourceFactory{
		http:  storage.NewHTTPSource(cfg.SourceFetchTimeout, storage.WithValidator(validator)),
		local: storage.NewFileSource(),
	}

	if cfg.AzureEnabled() {
		azure, err := storage.NewAzureSource(cfg.AzureAccountName, cfg.AzureAccountKey)
		if err != nil {
			return nil, err
		}
		f.azure = azure
	}
	return f, nil
}

// CreateSource returns the source for the specified type
func (f *sourceFactory) CreateSource(storageType StorageType) (storage.Source, error) {
	switch storageType {
	case HTTPStorage:
		return f.http, nil
	case AzureStorage:
		if f.azure == nil {
			return nil, apperrors.NewValidationError("Azure storage is not configured; set azure_account_name and azure_account_key", nil)
		}
		return f.azure, nil
	case LocalStorage:
		return f.local, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// Resolve picks the source that can fetch ref
func (f *sourceFactory) Resolve(ref string) (storage.Source, error) {
	storageType, err := StorageTypeFor(ref)
	if err != nil {
		return nil, err
	}
	return f.CreateSource(storageType)
}

// ControllerFactory creates one submission controller per session
type ControllerFactory interface {
	CreateController(sessionID string) *submission.Controller
}

// controllerFactory implements ControllerFactory
type controllerFactory struct {
	analyzer      submission.Analyzer
	events        observer.Subject
	selectionOpts []media.Option
}

// NewControllerFactory creates controllers sharing analyzer and events
func NewControllerFactory(analyzer submission.Analyzer, events observer.Subject, selectionOpts ...media.Option) ControllerFactory {
	return &controllerFactory{
		analyzer:      analyzer,
		events:        events,
		selectionOpts: selectionOpts,
	}
}

// CreateController creates an Idle controller tagged with sessionID
func (f *controllerFactory) CreateController(sessionID string) *submission.Controller {
	opts := []submission.Option{
		submission.WithSessionID(sessionID),
		submission.WithSelection(media.NewSelection(f.selectionOpts...)),
	}
	if f.events != nil {
		opts = append(opts, submission.WithEvents(f.events))
	}
	return submission.NewController(f.analyzer, opts...)
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	SourceFactory     SourceFactory
	ControllerFactory ControllerFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(sources SourceFactory, controllers ControllerFactory) *ComponentFactory {
	return &ComponentFactory{
		SourceFactory:     sources,
		ControllerFactory: controllers,
	}
}
