package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/iris_server/internal/credit"
	"github.com/qs3c/iris_server/internal/model"
	"github.com/qs3c/iris_server/internal/model/dto"
	"github.com/qs3c/iris_server/internal/pkg/llm"
	"github.com/qs3c/iris_server/internal/pkg/storage"
	"github.com/qs3c/iris_server/internal/repository"
)

var (
	ErrChatNotFound       = errors.New("会话不存在")
	ErrTooManyImages      = errors.New("图片数量超过限制")
	ErrInvalidImage       = errors.New("图片格式无效")
	ErrImageTooLarge      = errors.New("图片过大")
	ErrAIUnavailable      = errors.New("AI 服务暂不可用")
	ErrStorageUnavailable = errors.New("对象存储未配置")
)

const (
	defaultChatTitle = "New Chat"
	chatImagePrefix  = "chat-images"
)

type ChatOptions struct {
	Pricing      credit.Pricing
	MaxImages    int
	MaxImageSize int64
}

type ChatService struct {
	chatRepo *repository.ChatRepository
	metering *MeteringService
	llm      llm.Completer
	store    storage.ObjectStore // 为 nil 时拒绝带图片的消息
	opts     ChatOptions
}

func NewChatService(
	chatRepo *repository.ChatRepository,
	metering *MeteringService,
	completer llm.Completer,
	store storage.ObjectStore,
	opts ChatOptions,
) *ChatService {
	if opts.Pricing == (credit.Pricing{}) {
		opts.Pricing = credit.DefaultPricing()
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = 4
	}
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = 5 * 1024 * 1024
	}
	return &ChatService{
		chatRepo: chatRepo,
		metering: metering,
		llm:      completer,
		store:    store,
		opts:     opts,
	}
}

// Create 新建会话
func (s *ChatService) Create(userID int64, title string) (*model.ChatHistory, error) {
	if title == "" {
		title = defaultChatTitle
	}
	chat := &model.ChatHistory{
		UserID:   userID,
		Title:    title,
		Messages: []model.Message{},
	}
	if err := s.chatRepo.Create(chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// List 用户的会话列表
func (s *ChatService) List(userID int64, page, pageSize int) ([]*model.ChatHistory, int64, error) {
	return s.chatRepo.ListByUserID(userID, page, pageSize)
}

// Get 会话详情（含消息），只能查看自己的会话
func (s *ChatService) Get(userID, chatID int64) (*model.ChatHistory, error) {
	chat, err := s.chatRepo.GetWithMessages(chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	if chat.UserID != userID {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// Delete 删除会话及其消息
func (s *ChatService) Delete(userID, chatID int64) error {
	if _, err := s.owned(userID, chatID); err != nil {
		return err
	}
	return s.chatRepo.Delete(chatID)
}

type inlineImage struct {
	contentType string
	data        []byte
}

// SendMessage 计费后保存用户消息、调用模型、保存回复。
// 费用只按请求声明的图片数计算；任一步失败都会退还积分。
func (s *ChatService) SendMessage(ctx context.Context, userID, chatID int64, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	chat, err := s.owned(userID, chatID)
	if err != nil {
		return nil, err
	}

	images, err := s.decodeImages(req.Images)
	if err != nil {
		return nil, err
	}

	cost := s.opts.Pricing.Cost(len(req.Images))
	resp := &dto.SendMessageResponse{}

	err = s.metering.Run(ctx, userID, cost, func(ctx context.Context) error {
		urls, err := s.uploadImages(ctx, userID, images)
		if err != nil {
			return err
		}

		userMsg := &model.Message{
			ChatID:    chat.ID,
			Role:      model.RoleUser,
			Content:   req.Content,
			Images:    urls,
			Timestamp: time.Now().UTC(),
		}
		if err := s.chatRepo.AddMessage(userMsg); err != nil {
			return err
		}
		resp.UserMessage = userMsg

		reply, err := s.llm.Complete(ctx, req.Content)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAIUnavailable, err)
		}
		if reply == "" {
			reply = llm.EmptyReply
		}

		aiMsg := &model.Message{
			ChatID:    chat.ID,
			Role:      model.RoleAssistant,
			Content:   reply,
			Timestamp: time.Now().UTC(),
		}
		if err := s.chatRepo.AddMessage(aiMsg); err != nil {
			return err
		}
		resp.AIMessage = aiMsg

		if err := s.chatRepo.Touch(chat.ID, aiMsg.Timestamp); err != nil {
			logrus.WithFields(logrus.Fields{
				"chat_id": chat.ID,
				"error":   err,
			}).Warn("failed to touch chat")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (s *ChatService) owned(userID, chatID int64) (*model.ChatHistory, error) {
	chat, err := s.chatRepo.GetByID(chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	if chat.UserID != userID {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// decodeImages 在扣费前校验全部图片
func (s *ChatService) decodeImages(uris []string) ([]inlineImage, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	if len(uris) > s.opts.MaxImages {
		return nil, ErrTooManyImages
	}
	if s.store == nil {
		return nil, ErrStorageUnavailable
	}

	images := make([]inlineImage, 0, len(uris))
	for _, uri := range uris {
		contentType, data, err := storage.ParseDataURI(uri)
		if err != nil || !storage.IsImageType(contentType) {
			return nil, ErrInvalidImage
		}
		if int64(len(data)) > s.opts.MaxImageSize {
			return nil, ErrImageTooLarge
		}
		images = append(images, inlineImage{contentType: contentType, data: data})
	}
	return images, nil
}

func (s *ChatService) uploadImages(ctx context.Context, userID int64, images []inlineImage) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}

	urls := make([]string, 0, len(images))
	for _, img := range images {
		key := storage.ObjectKey(chatImagePrefix, userID, img.contentType)
		url, err := s.store.Put(ctx, key, img.data, img.contentType)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}
