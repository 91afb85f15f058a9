package translate

import (
	"regexp"
	"sort"
	"strings"
)

// dictionary replaces whole English words and phrases in one pass.
type dictionary struct {
	words map[string]string
	re    *regexp.Regexp
}

func newDictionary(words map[string]string) *dictionary {
	keys := make([]string, 0, len(words))
	for k := range words {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	// Longest first so "open source" wins over "open".
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return &dictionary{
		words: words,
		re:    regexp.MustCompile(`(?i)\b(?:` + strings.Join(keys, "|") + `)\b`),
	}
}

// dictionaryFor returns the word list for a target language, or nil when
// there is none.
func dictionaryFor(language string) *dictionary {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "chinese", "zh", "zh-cn":
		return chinese
	}
	return nil
}

func (d *dictionary) translate(title string) string {
	if d == nil {
		return title
	}
	return d.re.ReplaceAllStringFunc(title, func(m string) string {
		return d.words[strings.ToLower(m)]
	})
}

var chinese = newDictionary(map[string]string{
	// technology
	"ai": "人工智能", "api": "接口", "algorithm": "算法", "artificial": "人工",
	"blockchain": "区块链", "bug": "漏洞", "code": "代码", "coding": "编程",
	"cybersecurity": "网络安全", "data": "数据", "database": "数据库",
	"debug": "调试", "development": "开发", "devops": "运维开发",
	"encryption": "加密", "framework": "框架", "git": "Git", "github": "GitHub",
	"hacker": "黑客", "hardware": "硬件", "internet": "互联网", "javascript": "JavaScript",
	"linux": "Linux", "machine": "机器", "malware": "恶意软件", "network": "网络",
	"open source": "开源", "programming": "编程", "python": "Python", "quantum": "量子",
	"repository": "仓库", "security": "安全", "server": "服务器", "software": "软件",
	"system": "系统", "technology": "技术", "testing": "测试", "tool": "工具",
	"update": "更新", "version": "版本", "vulnerability": "漏洞", "web": "网络",
	"website": "网站", "windows": "Windows", "app": "应用", "application": "应用程序",

	// verbs
	"released": "发布", "launched": "推出", "announced": "宣布", "updated": "更新",
	"fixed": "修复", "improved": "改进", "added": "添加", "removed": "移除",
	"changed": "改变", "created": "创建", "developed": "开发", "designed": "设计",
	"built": "构建", "implemented": "实现", "discovered": "发现", "found": "发现",
	"reported": "报告", "revealed": "揭示", "showed": "显示", "tested": "测试",
	"analyzed": "分析", "compared": "比较", "reviewed": "审查", "evaluated": "评估",

	// adjectives
	"new": "新", "latest": "最新", "popular": "热门", "trending": "趋势", "viral": "病毒式",
	"free": "免费", "open": "开放", "closed": "关闭", "public": "公共", "private": "私有",
	"secure": "安全", "insecure": "不安全", "fast": "快速", "slow": "慢速",
	"easy": "简单", "complex": "复杂", "powerful": "强大", "useful": "有用",
	"better": "更好", "worse": "更差", "best": "最佳", "worst": "最差",
	"big": "大", "small": "小", "large": "大型", "tiny": "微小", "huge": "巨大",

	// numbers
	"million": "百万", "billion": "十亿", "trillion": "万亿",

	// companies
	"google": "谷歌", "microsoft": "微软", "apple": "苹果", "amazon": "亚马逊",
	"facebook": "Facebook", "meta": "Meta", "twitter": "Twitter", "tesla": "特斯拉",
	"netflix": "Netflix", "adobe": "Adobe", "oracle": "甲骨文", "samsung": "三星",
	"intel": "英特尔", "nvidia": "英伟达", "amd": "AMD", "ibm": "IBM",

	// common words
	"iphone": "iPhone", "android": "安卓", "phone": "手机",
	"computer": "电脑", "laptop": "笔记本电脑", "desktop": "台式机",
	"browser": "浏览器", "chrome": "Chrome", "firefox": "Firefox", "safari": "Safari",
	"email": "邮件", "message": "消息", "chat": "聊天", "social": "社交",
	"media": "媒体", "video": "视频", "audio": "音频", "image": "图片",
	"photo": "照片", "file": "文件", "document": "文档", "text": "文本",
	"game": "游戏", "play": "玩", "player": "播放器", "music": "音乐",
	"movie": "电影", "book": "书", "news": "新闻", "article": "文章",
	"blog": "博客", "post": "帖子", "comment": "评论", "reply": "回复",
	"user": "用户", "account": "账户", "login": "登录", "password": "密码",
	"name": "名称", "title": "标题", "content": "内容", "page": "页面",
	"site": "网站", "link": "链接", "url": "网址", "address": "地址",
	"location": "位置", "place": "地方", "country": "国家", "city": "城市",
	"time": "时间", "date": "日期", "year": "年", "month": "月", "day": "天",
	"hour": "小时", "minute": "分钟", "second": "秒", "today": "今天", "yesterday": "昨天",
	"tomorrow": "明天", "now": "现在", "future": "未来", "past": "过去",
})
