package credit

// Pricing 计费参数
type Pricing struct {
	BaseMessageCost int
	PerImageCost    int
}

// DefaultPricing 文本消息 1 分，每张图片另加 5 分
func DefaultPricing() Pricing {
	return Pricing{BaseMessageCost: 1, PerImageCost: 5}
}

// Cost 一次请求的费用，只依据请求自身声明的图片数计算
func (p Pricing) Cost(imageCount int) int {
	if imageCount < 0 {
		imageCount = 0
	}
	return p.BaseMessageCost + p.PerImageCost*imageCount
}
