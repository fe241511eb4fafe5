package render

import "context"

type Renderer interface {
	RenderHome(ctx context.Context, page HomePage) ([]byte, error)
	RenderPost(ctx context.Context, page PostPage) ([]byte, error)
	RenderSearch(ctx context.Context, page SearchPage) ([]byte, error)
	RenderHashtag(ctx context.Context, page HashtagPage) ([]byte, error)
	RenderNotFound(ctx context.Context, page NotFoundPage) ([]byte, error)
	RenderAdminLogin(ctx context.Context, page AdminLoginPage) ([]byte, error)
	RenderAdminDashboard(ctx context.Context, page AdminDashboardPage) ([]byte, error)
}
