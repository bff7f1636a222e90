package services

import (
	"context"
	"errors"
	"sereno/db"
	"sereno/models"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const MaxReportReasonLength = 500

type CommentService struct {
	db       *gorm.DB
	notifier Notifier
}

func NewCommentService(orm *gorm.DB, notifier Notifier) *CommentService {
	return &CommentService{db: orm, notifier: notifier}
}

// AddComment stores a comment and bumps the comment counter of the post
func (cs *CommentService) AddComment(ctx context.Context, sess Session, postID, content string) (*models.Comment, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, newError(KindValidation, "comment cannot be empty")
	}

	var post models.Post
	now := time.Now().UTC()
	comment := &models.Comment{
		PostID:    postID,
		UserID:    sess.UserID,
		Author:    sess.name(),
		Avatar:    sess.PhotoURL,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.Write(ctx, cs.db).Transaction(func(tx *gorm.DB) error {
		if err := loadPost(tx, postID, &post); err != nil {
			return err
		}
		if err := tx.Create(comment).Error; err != nil {
			return remoteError("failed to add comment", err)
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("comments", gorm.Expr("comments + 1")).Error; err != nil {
			return remoteError("failed to update comment count", err)
		}
		return nil
	})
	if err != nil {
		logPostFailure("AddComment", err, postID, sess.UserID)
		return nil, err
	}

	if post.UserID != sess.UserID && cs.notifier != nil {
		err := cs.notifier.Notify(ctx, &models.Notification{
			RecipientID: post.UserID,
			SenderID:    sess.UserID,
			SenderName:  sess.name(),
			Type:        models.NotificationComment,
			Title:       "New comment",
			Message:     sess.name() + " commented: " + CommentPreview(content),
			ActionURL:   "/home/posts/" + post.ID,
			PostID:      post.ID,
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{"function": "AddComment", "post_id": post.ID, "error": err.Error()}).
				Warn("Failed to deliver notification")
		}
	}
	return comment, nil
}

// EditComment replaces the content of the session user's comment
func (cs *CommentService) EditComment(ctx context.Context, sess Session, commentID, content string) (*models.Comment, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, newError(KindValidation, "comment cannot be empty")
	}
	var comment models.Comment
	err := db.Write(ctx, cs.db).Transaction(func(tx *gorm.DB) error {
		if err := loadComment(tx, commentID, &comment); err != nil {
			return err
		}
		if comment.UserID != sess.UserID {
			return newError(KindForbidden, "only the author can edit this comment")
		}
		comment.Content = content
		comment.IsEdited = true
		comment.UpdatedAt = time.Now().UTC()
		err := tx.Model(&models.Comment{}).Where("id = ?", comment.ID).Updates(map[string]interface{}{
			"content":    comment.Content,
			"is_edited":  true,
			"updated_at": comment.UpdatedAt,
		}).Error
		if err != nil {
			return remoteError("failed to edit comment", err)
		}
		return nil
	})
	if err != nil {
		logPostFailure("EditComment", err, commentID, sess.UserID)
		return nil, err
	}
	return &comment, nil
}

// DeleteComment removes the session user's comment; the post counter is floored at zero
func (cs *CommentService) DeleteComment(ctx context.Context, sess Session, commentID string) error {
	if err := sess.validate(); err != nil {
		return err
	}
	err := db.Write(ctx, cs.db).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := loadComment(tx, commentID, &comment); err != nil {
			return err
		}
		if comment.UserID != sess.UserID {
			return newError(KindForbidden, "only the author can delete this comment")
		}
		for _, model := range []interface{}{&models.CommentLike{}, &models.CommentReport{}} {
			if err := tx.Where("comment_id = ?", comment.ID).Delete(model).Error; err != nil {
				return remoteError("failed to delete comment", err)
			}
		}
		if err := tx.Where("id = ?", comment.ID).Delete(&models.Comment{}).Error; err != nil {
			return remoteError("failed to delete comment", err)
		}
		err := tx.Model(&models.Post{}).Where("id = ?", comment.PostID).
			UpdateColumn("comments", gorm.Expr("CASE WHEN comments > 0 THEN comments - 1 ELSE 0 END")).Error
		if err != nil {
			return remoteError("failed to update comment count", err)
		}
		return nil
	})
	if err != nil {
		logPostFailure("DeleteComment", err, commentID, sess.UserID)
	}
	return err
}

// ToggleVisibility hides or shows a comment; only the post author moderates
func (cs *CommentService) ToggleVisibility(ctx context.Context, sess Session, commentID string) (*models.Comment, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	var comment models.Comment
	err := db.Write(ctx, cs.db).Transaction(func(tx *gorm.DB) error {
		if err := loadComment(tx, commentID, &comment); err != nil {
			return err
		}
		var post models.Post
		if err := loadPost(tx, comment.PostID, &post); err != nil {
			return err
		}
		if post.UserID != sess.UserID {
			return newError(KindForbidden, "only the post author can hide comments")
		}
		comment.IsHidden = !comment.IsHidden
		if err := tx.Model(&models.Comment{}).Where("id = ?", comment.ID).
			UpdateColumn("is_hidden", comment.IsHidden).Error; err != nil {
			return remoteError("failed to update comment", err)
		}
		return nil
	})
	if err != nil {
		logPostFailure("ToggleVisibility", err, commentID, sess.UserID)
		return nil, err
	}
	return &comment, nil
}

// ToggleCommentLike likes the comment for the session user, or takes the like back.
// It reports whether the comment is liked afterwards.
func (cs *CommentService) ToggleCommentLike(ctx context.Context, sess Session, commentID string) (*models.Comment, bool, error) {
	if err := sess.validate(); err != nil {
		return nil, false, err
	}
	var comment models.Comment
	var liked bool
	err := db.Write(ctx, cs.db).Transaction(func(tx *gorm.DB) error {
		if err := loadComment(tx, commentID, &comment); err != nil {
			return err
		}
		result := tx.Where("comment_id = ? AND user_id = ?", comment.ID, sess.UserID).Delete(&models.CommentLike{})
		if result.Error != nil {
			return remoteError("failed to update comment like", result.Error)
		}
		counter := gorm.Expr("CASE WHEN likes > 0 THEN likes - 1 ELSE 0 END")
		if result.RowsAffected == 0 {
			like := models.CommentLike{CommentID: comment.ID, UserID: sess.UserID, PostID: comment.PostID, CreatedAt: time.Now().UTC()}
			if err := tx.Create(&like).Error; err != nil {
				return remoteError("failed to like comment", err)
			}
			counter = gorm.Expr("likes + 1")
			liked = true
		}
		if err := tx.Model(&models.Comment{}).Where("id = ?", comment.ID).UpdateColumn("likes", counter).Error; err != nil {
			return remoteError("failed to update comment likes", err)
		}
		if err := tx.Where("id = ?", comment.ID).First(&comment).Error; err != nil {
			return remoteError("failed to load comment", err)
		}
		return nil
	})
	if err != nil {
		logPostFailure("ToggleCommentLike", err, commentID, sess.UserID)
		return nil, false, err
	}
	return &comment, liked, nil
}

// ReportComment flags a comment for moderation; each user reports a comment once
func (cs *CommentService) ReportComment(ctx context.Context, sess Session, commentID, reason string) (*models.Comment, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newError(KindValidation, "a reason is required to report a comment")
	}
	if len(reason) > MaxReportReasonLength {
		return nil, newError(KindValidation, "the reason must be at most %d characters", MaxReportReasonLength)
	}
	var comment models.Comment
	err := db.Write(ctx, cs.db).Transaction(func(tx *gorm.DB) error {
		if err := loadComment(tx, commentID, &comment); err != nil {
			return err
		}
		if comment.UserID == sess.UserID {
			return newError(KindValidation, "you cannot report your own comment")
		}
		var reported int64
		err := tx.Model(&models.CommentReport{}).
			Where("comment_id = ? AND user_id = ?", comment.ID, sess.UserID).
			Count(&reported).Error
		if err != nil {
			return remoteError("failed to check reports", err)
		}
		if reported > 0 {
			return newError(KindDuplicate, "you already reported this comment")
		}
		report := models.CommentReport{
			CommentID: comment.ID,
			UserID:    sess.UserID,
			PostID:    comment.PostID,
			Reason:    reason,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&report).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(KindDuplicate, "you already reported this comment")
			}
			return remoteError("failed to report comment", err)
		}
		comment.IsReported = true
		comment.UpdatedAt = report.CreatedAt
		err = tx.Model(&models.Comment{}).Where("id = ?", comment.ID).Updates(map[string]interface{}{
			"is_reported": true,
			"updated_at":  comment.UpdatedAt,
		}).Error
		if err != nil {
			return remoteError("failed to flag comment", err)
		}
		return nil
	})
	if err != nil {
		logPostFailure("ReportComment", err, commentID, sess.UserID)
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"function":   "ReportComment",
		"comment_id": comment.ID,
		"post_id":    comment.PostID,
		"user_id":    sess.UserID,
	}).Info("Comment reported")
	return &comment, nil
}

// Reports lists the reports of a comment; only the post author moderates
func (cs *CommentService) Reports(ctx context.Context, sess Session, commentID string) ([]models.CommentReport, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	var comment models.Comment
	if err := loadComment(db.Read(ctx, cs.db), commentID, &comment); err != nil {
		return nil, err
	}
	var post models.Post
	if err := loadPost(db.Read(ctx, cs.db), comment.PostID, &post); err != nil {
		return nil, err
	}
	if post.UserID != sess.UserID {
		return nil, newError(KindForbidden, "only the post author can see reports")
	}
	reports := []models.CommentReport{}
	if err := db.Read(ctx, cs.db).Where("comment_id = ?", comment.ID).Order("created_at ASC").Find(&reports).Error; err != nil {
		return nil, remoteError("failed to load reports", err)
	}
	return reports, nil
}

// ListComments returns comments oldest first; hidden ones only for the post author
func (cs *CommentService) ListComments(ctx context.Context, postID, viewerID string) ([]models.Comment, error) {
	var post models.Post
	if err := loadPost(db.Read(ctx, cs.db), postID, &post); err != nil {
		return nil, err
	}
	query := db.Read(ctx, cs.db).Where("post_id = ?", post.ID)
	if post.UserID != viewerID {
		query = query.Where("is_hidden = ? OR user_id = ?", false, viewerID)
	}
	comments := []models.Comment{}
	if err := query.Order("created_at ASC").Order("id ASC").Find(&comments).Error; err != nil {
		return nil, remoteError("failed to load comments", err)
	}
	return comments, nil
}

func loadComment(tx *gorm.DB, commentID string, comment *models.Comment) error {
	if strings.TrimSpace(commentID) == "" {
		return newError(KindValidation, "comment id is required")
	}
	err := tx.Where("id = ?", commentID).First(comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(KindNotFound, "comment not found")
	}
	if err != nil {
		return remoteError("failed to load comment", err)
	}
	return nil
}
