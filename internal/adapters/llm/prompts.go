package llm

import (
	"fmt"
	"strings"

	"automag/internal/domain"
)

const moderationSystemPrompt = `You are a senior content moderator for a platform whose readers are in mainland China, including teenagers.
Decide whether the news article you are given may be distributed there.
Answer with exactly one word: safe or unsafe.
- safe: neutral, factual international news, business, technology, science or culture that is suitable for teenagers.
- unsafe: politically sensitive or restricted topics in mainland China (criticism of the Chinese government or its leaders, the Tiananmen Square events, Falun Gong, Tibetan or Xinjiang independence, the political status of Taiwan) or sexual content.
Never explain your answer. Output only safe or unsafe.`

func moderationUserPrompt(title, content string) string {
	return fmt.Sprintf(`Review the article below and answer safe or unsafe.

Title: %s

Content:
---
%s
---`, title, clipRunes(content, moderationContentLimit))
}

const descriptionSystemPrompt = `你是教育产品的文案专家。
根据给出的学习材料信息，写一段自然、有吸引力、长度适中的中文介绍，突出材料的价值、亮点和适合的学习者，激发学习兴趣。`

func descriptionUserPrompt(m domain.Material) string {
	topics := strings.Join(m.Topics(), ", ")
	if topics == "" {
		topics = "不详"
	}
	return fmt.Sprintf(`请为下面的外刊精读材料写一段 100-200 字的中文介绍，展示给潜在学习者。

英文标题: %s
中文标题: %s
来源: %s
难度: %s
话题: %s
内容概述: %s

要求：
1. 体现英文原版新闻的真实性和时效性。
2. 强调精读价值：逐段的词汇、语法、短语解析。
3. 如有文化背景解读，请提及。
4. 说明适合的学习者，例如想提升阅读理解、扩充词汇、掌握长难句的人。
5. 语言生动，有吸引力。
6. 只输出纯文本，不要使用 markdown。`,
		orDefault(m.TitleEnglish(), "未知标题"),
		orDefault(m.TitleChinese(), "未知标题"),
		orDefault(m.Source(), "未知来源"),
		orDefault(m.Difficulty(), "未评估"),
		topics,
		orDefault(m.SummaryChinese(), "无总结"),
	)
}

const generationSystemPrompt = `你是资深英语教学专家和内容编辑，为中国英语学习者制作高质量的“外刊精读”材料。
你会收到一篇英文新闻，需要把它转换成一个结构化的 JSON 对象，严格遵守给定的结构。

必须做到：
1. 完整：逐段分析全文，从第一段到最后一段，不得遗漏或截断，文章再长也一样。
2. 纯 JSON：整个回复就是一个语法正确的 JSON 对象，不要任何解释、注释或 markdown 代码块。
3. 质量：翻译、讲解和分析都要达到出版水准。`

const materialSchema = `{
  "type": "foreign_reading",
  "version": "1.0",
  "source": "新闻来源，例如 Reuters、AP News、BBC",
  "metadata": {
    "difficulty": "beginner | intermediate | advanced，综合词汇、句法和话题深度评估",
    "estimatedReadTime": "预计阅读分钟数（数字）",
    "author": "作者，无法确定时写 Unknown",
    "publishDate": "YYYY-MM-DD，无法确定时写 Unknown",
    "wordCount": "全文词数（数字）",
    "topics": ["主要话题，例如 politics, economy, technology, environment"]
  },
  "content": {
    "title": {"english": "完整英文标题", "chinese": "准确流畅的中文标题"},
    "paragraphs": [
      {
        "id": "p1",
        "english": "该段完整英文原文",
        "chinese": "该段地道的中文译文",
        "analysis": {
          "vocabulary": [
            {
              "word": "重点词汇或短语",
              "meaning": "中文释义",
              "pronunciation": "国际音标",
              "partOfSpeech": "词性",
              "usage": "用法、搭配或辨析",
              "examples": ["例句"],
              "synonyms": ["同义词"]
            }
          ],
          "grammar": {
            "points": [
              {
                "structure": "段落中的语法结构或长难句",
                "type": "语法类型，例如 倒装句、虚拟语气、非谓语动词",
                "explanation": "中文讲解",
                "examples": ["例句，最好取自原文"]
              }
            ]
          },
          "phrases": [
            {"phrase": "短语或习语", "meaning": "中文释义", "usage": "用法", "examples": ["例句"]}
          ]
        }
      }
    ],
    "summary": {"english": "3-5 句英文总结", "chinese": "总结的中文翻译"},
    "keyTakeaways": ["中文要点"],
    "culturalContext": "相关文化或历史背景的中文说明，没有则为空字符串",
    "discussion": {
      "questions": ["中文思考题"],
      "activities": ["学习活动建议"]
    },
    "exercises": [
      {
        "type": "comprehension | vocabulary | translation | writing",
        "question": "英文题干",
        "options": ["A", "B", "C", "D"],
        "answer": "正确选项字母",
        "explanation": "中文解析"
      }
    ]
  }
}`

func generationUserPrompt(title, content, url string) string {
	return fmt.Sprintf(`请为下面的英文文章生成完整的“外刊精读”材料。

文章标题: %s
文章链接: %s

文章内容:
---
%s
---

要求：
1. 逐段分析文章的每一个段落，这是最重要的要求，不允许省略任何段落。
2. 每个字段都要填写，尤其是 analysis 下的 vocabulary、grammar、phrases；词汇必须带 pronunciation 和 partOfSpeech。
3. 中文翻译准确、自然，保持原文语气。
4. 每段精选 3-5 个核心词汇或短语，挑出 2-3 个值得学习的语法点或长难句。
5. 在 content.exercises 中出 6-8 道选择题，题型混合 comprehension、vocabulary、translation、writing 并打乱顺序，难度参照高考、四六级、考研、雅思托福，每题唯一正确答案并附详细解析。
6. 只输出一个完整、语法正确的 JSON 对象，结构如下：

%s

再次提醒：必须分析全文每一个段落。现在开始输出 JSON。`, title, url, content, materialSchema)
}

func orDefault(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
