package controllers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/utils"
)

type PostController struct {
	posts  *services.PostService
	images utils.ImageStore
	log    *zap.Logger
}

func NewPostController(posts *services.PostService, images utils.ImageStore, log *zap.Logger) *PostController {
	return &PostController{posts: posts, images: images, log: log}
}

type postRequest struct {
	BoardID  string `form:"boardId" json:"boardId"`
	Username string `form:"username" json:"username"`
	Title    string `form:"title" json:"title"`
	Content  string `form:"content" json:"content"`
}

// CreatePost accepts multipart form data with an optional image part, or JSON.
func (p *PostController) CreatePost(ctx *gin.Context) {
	part, err := imagePart(ctx)
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	var req postRequest
	if err := ctx.ShouldBind(&req); err != nil {
		badRequest(ctx, "invalid request body")
		return
	}
	if req.BoardID == "" {
		badRequest(ctx, "boardId is required")
		return
	}
	image, err := p.saveImage(ctx, part)
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	post, err := p.posts.Create(ctx.Request.Context(), principal(ctx).UserID, services.PostInput{
		BoardID:  req.BoardID,
		Username: req.Username,
		Title:    req.Title,
		Content:  req.Content,
		Image:    image,
	})
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	utils.JSON(ctx, http.StatusCreated, post)
}

// imagePart returns the "image" part, or nil when the request carries none. A body that
// cannot be read as multipart is an invalid image.
func imagePart(ctx *gin.Context) (*multipart.FileHeader, error) {
	fh, err := ctx.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, services.ErrInvalidImage
	}
	return fh, nil
}

func (p *PostController) saveImage(ctx *gin.Context, fh *multipart.FileHeader) (*string, error) {
	if fh == nil {
		return nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	url, err := p.images.Save(ctx.Request.Context(), f, fh.Size)
	if errors.Is(err, utils.ErrUnsupportedImage) || errors.Is(err, utils.ErrImageTooLarge) {
		return nil, services.ErrInvalidImage
	}
	if err != nil {
		return nil, err
	}
	return &url, nil
}

func (p *PostController) Reply(ctx *gin.Context) {
	var req postRequest
	if err := ctx.ShouldBind(&req); err != nil {
		badRequest(ctx, "invalid request body")
		return
	}
	post, err := p.posts.Reply(ctx.Request.Context(), principal(ctx).UserID, ctx.Param("id"), services.PostInput{
		Username: req.Username,
		Title:    req.Title,
		Content:  req.Content,
	})
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	utils.JSON(ctx, http.StatusCreated, post)
}

func (p *PostController) GetPost(ctx *gin.Context) {
	post, err := p.posts.GetByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, post)
}

func (p *PostController) Replies(ctx *gin.Context) {
	p.list(ctx, func() ([]models.Post, error) { return p.posts.GetReplies(ctx.Request.Context(), ctx.Param("id")) })
}

func (p *PostController) Thread(ctx *gin.Context) {
	p.list(ctx, func() ([]models.Post, error) { return p.posts.Descendants(ctx.Request.Context(), ctx.Param("id")) })
}

func (p *PostController) Upvote(ctx *gin.Context) {
	p.vote(ctx, models.VoteUp, "upvoted")
}

func (p *PostController) Downvote(ctx *gin.Context) {
	p.vote(ctx, models.VoteDown, "downvoted")
}

func (p *PostController) vote(ctx *gin.Context, direction, msg string) {
	res, err := p.posts.Vote(ctx.Request.Context(), principal(ctx).UserID, ctx.Param("id"), direction)
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	writeVote(ctx, msg, res)
}

func (p *PostController) Unvote(ctx *gin.Context) {
	res, err := p.posts.Unvote(ctx.Request.Context(), principal(ctx).UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	writeVote(ctx, "vote removed", res)
}

func writeVote(ctx *gin.Context, msg string, res *services.VoteResult) {
	var direction interface{}
	if res.Direction != "" {
		direction = res.Direction
	}
	utils.JSON(ctx, http.StatusOK, gin.H{
		"message":       msg,
		"direction":     direction,
		"upvoteCount":   res.UpvoteCount,
		"downvoteCount": res.DownvoteCount,
	})
}

func (p *PostController) ToggleBookmark(ctx *gin.Context) {
	on, err := p.posts.ToggleBookmark(ctx.Request.Context(), principal(ctx).UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	msg := "bookmark removed"
	if on {
		msg = "post bookmarked"
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"message": msg, "isBookmarked": on})
}

func (p *PostController) IsBookmarked(ctx *gin.Context) {
	on, err := p.posts.IsBookmarked(ctx.Request.Context(), principal(ctx).UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"isBookmarked": on})
}

func (p *PostController) Bookmarks(ctx *gin.Context) {
	p.list(ctx, func() ([]models.Post, error) { return p.posts.Bookmarks(ctx.Request.Context(), principal(ctx).UserID) })
}

func (p *PostController) ForYou(ctx *gin.Context) {
	p.page(ctx, func(pg services.Page) ([]models.Post, services.Page, error) {
		return p.posts.FeedForYou(ctx.Request.Context(), pg)
	})
}

func (p *PostController) Following(ctx *gin.Context) {
	p.page(ctx, func(pg services.Page) ([]models.Post, services.Page, error) {
		return p.posts.FeedFollowing(ctx.Request.Context(), principal(ctx).UserID, pg)
	})
}

func (p *PostController) ByBoard(ctx *gin.Context) {
	p.page(ctx, func(pg services.Page) ([]models.Post, services.Page, error) {
		return p.posts.PostsByBoard(ctx.Request.Context(), ctx.Param("id"), pg)
	})
}

func (p *PostController) ByUser(ctx *gin.Context) {
	p.list(ctx, func() ([]models.Post, error) { return p.posts.PostsByUser(ctx.Request.Context(), ctx.Param("id")) })
}

func (p *PostController) RepliesByUser(ctx *gin.Context) {
	p.list(ctx, func() ([]models.Post, error) { return p.posts.RepliesByUser(ctx.Request.Context(), ctx.Param("id")) })
}

func (p *PostController) UpvotedByUser(ctx *gin.Context) {
	p.list(ctx, func() ([]models.Post, error) { return p.posts.UpvotedByUser(ctx.Request.Context(), ctx.Param("id")) })
}

func (p *PostController) DownvotedByUser(ctx *gin.Context) {
	p.list(ctx, func() ([]models.Post, error) { return p.posts.DownvotedByUser(ctx.Request.Context(), ctx.Param("id")) })
}

func (p *PostController) list(ctx *gin.Context, fetch func() ([]models.Post, error)) {
	posts, err := fetch()
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, posts)
}

func (p *PostController) page(ctx *gin.Context, fetch func(services.Page) ([]models.Post, services.Page, error)) {
	pg, ok := parsePage(ctx)
	if !ok {
		badRequest(ctx, "page, limit and snapshot must be numbers or timestamps")
		return
	}
	posts, used, err := fetch(pg)
	if err != nil {
		respondError(ctx, p.log, err)
		return
	}
	ctx.Header(SnapshotHeader, models.FormatTime(used.Snapshot))
	utils.JSON(ctx, http.StatusOK, posts)
}
