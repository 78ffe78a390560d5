package chatx3webui

import "embed"

// TemplateFS contains the embedded HTML templates used for rendering the chat
// interface, organized into layouts, pages and partial views.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the embedded static assets required by the chat
// interface.
//
//go:embed static/*
var StaticFS embed.FS
